package handlers

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/allsafeASM/rmap/internal/common"
	"github.com/allsafeASM/rmap/internal/models"
	"github.com/allsafeASM/rmap/internal/notification"
	"github.com/allsafeASM/rmap/internal/utils"
	"github.com/allsafeASM/rmap/internal/validation"
	"github.com/projectdiscovery/gologger"
	"golang.org/x/exp/slices"
)

// storeTimeout bounds result storage once the scan context is gone
const storeTimeout = 30 * time.Second

// Scanner runs network scans
type Scanner interface {
	Plan(req models.ScanRequest) (hosts []string, ports []uint32)
	Scan(ctx context.Context, req models.ScanRequest) <-chan models.ScanProgress
}

// ResultStore persists task results and returns where they were written
type ResultStore interface {
	StoreTaskResult(ctx context.Context, result *models.TaskResult) (string, error)
}

// HostsFileReader fetches an uploaded hosts file
type HostsFileReader interface {
	ReadHostsFileFromBlob(ctx context.Context, blobPath string) (string, error)
}

// ProgressPublisher forwards stream units to the progress queue
type ProgressPublisher interface {
	Publish(ctx context.Context, message any) error
}

// TaskHandler runs queued scan tasks and stores their reports
type TaskHandler struct {
	scanner         Scanner
	store           ResultStore
	hostsReader     HostsFileReader
	progress        ProgressPublisher
	notifier        *notification.Notifier
	discordNotifier *notification.DiscordNotifier
	validator       *validation.Validator
	errorClassifier *common.ErrorClassifier
}

// NewTaskHandler creates a new task handler. progress, notifier and
// discordNotifier may be nil.
func NewTaskHandler(scanner Scanner, store ResultStore, hostsReader HostsFileReader, progress ProgressPublisher, notifier *notification.Notifier, discordNotifier *notification.DiscordNotifier) *TaskHandler {
	return &TaskHandler{
		scanner:         scanner,
		store:           store,
		hostsReader:     hostsReader,
		progress:        progress,
		notifier:        notifier,
		discordNotifier: discordNotifier,
		validator:       validation.NewValidator(),
		errorClassifier: common.NewErrorClassifier(),
	}
}

// HandleTask processes a task message and stores the result
func (h *TaskHandler) HandleTask(ctx context.Context, taskMsg *models.TaskMessage) *models.MessageProcessingResult {
	if err := h.validator.ValidateTaskMessage(taskMsg); err != nil {
		gologger.Error().Msgf("Invalid task message: %v", err)
		return &models.MessageProcessingResult{Success: false, Error: err, Retryable: false}
	}

	gologger.Info().Msgf("Processing %s task for scan %s", taskMsg.Task, taskMsg.ScanID)
	h.notifyDiscord(ctx, func(ctx context.Context) error {
		return h.discordNotifier.NotifyTaskReceived(ctx, taskMsg)
	})

	report, err := h.runScan(ctx, taskMsg)
	if err != nil {
		return h.handleFailure(ctx, taskMsg, err)
	}

	result := &models.TaskResult{
		Task:      taskMsg.Task,
		ScanID:    taskMsg.ScanID,
		Status:    models.TaskStatusCompleted,
		Data:      report,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	blobPath, err := h.storeResult(ctx, result)
	if err != nil {
		appErr := h.errorClassifier.ClassifyError(err)
		gologger.Error().Msgf("Failed to store result for scan %s: %v", taskMsg.ScanID, appErr)
		return &models.MessageProcessingResult{Success: false, Error: appErr, Retryable: appErr.IsRetryable()}
	}

	h.notifyDiscord(ctx, func(ctx context.Context) error {
		return h.discordNotifier.NotifyTaskCompleted(ctx, taskMsg, result)
	})
	h.notifyOrchestrator(ctx, taskMsg, result, blobPath)

	gologger.Info().Msgf("Scan %s completed: %d of %d hosts up", taskMsg.ScanID, report.HostsUp, report.HostsTotal)
	return &models.MessageProcessingResult{Success: true}
}

// runScan drains the scan stream into a report, publishing every unit
func (h *TaskHandler) runScan(ctx context.Context, taskMsg *models.TaskMessage) (*models.NetworkScanReport, error) {
	req, err := h.resolveRequest(ctx, taskMsg)
	if err != nil {
		return nil, err
	}

	hosts, ports := h.scanner.Plan(req)
	if len(hosts) == 0 {
		return nil, common.NewValidationError("request.ip_addresses", "no targets: none of the given addresses or ranges could be expanded")
	}

	report := &models.NetworkScanReport{
		Targets:      req.IPAddresses,
		PortsPerHost: len(ports),
		HostsTotal:   len(hosts),
		Hosts:        []models.HostResult{},
		StartedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	for progress := range h.scanner.Scan(ctx, req) {
		report.Hosts = append(report.Hosts, progress.Results...)
		h.publishProgress(ctx, taskMsg.ScanID, progress)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortHosts(report.Hosts)
	report.HostsUp = len(report.Hosts)
	report.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	return report, nil
}

// resolveRequest merges targets from the optional hosts file into the request
func (h *TaskHandler) resolveRequest(ctx context.Context, taskMsg *models.TaskMessage) (models.ScanRequest, error) {
	req := taskMsg.Request
	if taskMsg.InputBlobPath == "" {
		return req, nil
	}
	if h.hostsReader == nil {
		return req, common.NewConfigurationError("input_blob_path", "hosts files are not supported without blob storage")
	}

	content, err := h.hostsReader.ReadHostsFileFromBlob(ctx, taskMsg.InputBlobPath)
	if err != nil {
		return req, err
	}

	fileTargets := utils.ReadTargetsFromString(content)
	gologger.Info().Msgf("Read %d targets from %s", len(fileTargets), taskMsg.InputBlobPath)

	targets := make([]string, 0, len(req.IPAddresses)+len(fileTargets))
	targets = append(targets, req.IPAddresses...)
	targets = append(targets, fileTargets...)
	req.IPAddresses = targets
	return req, nil
}

func (h *TaskHandler) publishProgress(ctx context.Context, scanID string, progress models.ScanProgress) {
	if h.progress == nil {
		return
	}
	message := models.ProgressMessage{ScanID: scanID, ScanResponse: progress.Response()}
	if err := h.progress.Publish(ctx, message); err != nil {
		gologger.Warning().Msgf("Failed to publish progress %d/%d for scan %s: %v", progress.Scanned, progress.Total, scanID, err)
	}
}

// storeResult writes the result even when the scan context already ended
func (h *TaskHandler) storeResult(ctx context.Context, result *models.TaskResult) (string, error) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	return h.store.StoreTaskResult(storeCtx, result)
}

// handleFailure stores a failed result and reports whether a retry may help
func (h *TaskHandler) handleFailure(ctx context.Context, taskMsg *models.TaskMessage, err error) *models.MessageProcessingResult {
	appErr := h.errorClassifier.ClassifyError(err)
	retryable := appErr.IsRetryable()
	// A scan that ran out of time would time out again.
	if errors.Is(err, context.DeadlineExceeded) {
		retryable = false
	}
	gologger.Error().Msgf("Scan %s failed: %v", taskMsg.ScanID, appErr)

	h.notifyDiscord(ctx, func(ctx context.Context) error {
		return h.discordNotifier.NotifyTaskFailed(ctx, taskMsg, appErr)
	})

	if retryable {
		return &models.MessageProcessingResult{Success: false, Error: appErr, Retryable: true}
	}

	result := &models.TaskResult{
		Task:      taskMsg.Task,
		ScanID:    taskMsg.ScanID,
		Status:    models.TaskStatusFailed,
		Error:     appErr.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	blobPath, storeErr := h.storeResult(ctx, result)
	if storeErr != nil {
		gologger.Warning().Msgf("Failed to store failure result for scan %s: %v", taskMsg.ScanID, storeErr)
	}
	h.notifyOrchestrator(ctx, taskMsg, result, blobPath)

	return &models.MessageProcessingResult{Success: false, Error: appErr, Retryable: false}
}

func (h *TaskHandler) notifyDiscord(ctx context.Context, send func(context.Context) error) {
	if !h.discordNotifier.IsEnabled() {
		return
	}
	if err := send(context.WithoutCancel(ctx)); err != nil {
		gologger.Warning().Msgf("Discord notification failed: %v", err)
	}
}

func (h *TaskHandler) notifyOrchestrator(ctx context.Context, taskMsg *models.TaskMessage, result *models.TaskResult, blobPath string) {
	if h.notifier == nil {
		return
	}
	payload := notification.NewPayload(result, blobPath)
	if err := h.notifier.NotifyCompletionWithRetry(context.WithoutCancel(ctx), taskMsg.InstanceID, payload); err != nil {
		gologger.Warning().Msgf("Orchestrator notification failed for scan %s: %v", taskMsg.ScanID, err)
	}
}

// sortHosts orders hosts by address, IPv4 before IPv6, and each host's
// ports by number
func sortHosts(hosts []models.HostResult) {
	for i := range hosts {
		slices.SortFunc(hosts[i].Ports, func(a, b models.PortResult) int {
			return cmp.Compare(a.Port, b.Port)
		})
	}
	slices.SortFunc(hosts, func(a, b models.HostResult) int {
		addrA, errA := netip.ParseAddr(a.Host)
		addrB, errB := netip.ParseAddr(b.Host)
		if errA != nil || errB != nil {
			return strings.Compare(a.Host, b.Host)
		}
		return addrA.Compare(addrB)
	})
}

// String describes the handler's wiring for startup logs
func (h *TaskHandler) String() string {
	return fmt.Sprintf("TaskHandler(progress=%t, notifier=%t, discord=%t)", h.progress != nil, h.notifier != nil, h.discordNotifier.IsEnabled())
}
