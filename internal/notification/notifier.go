package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/allsafeASM/rmap/internal/models"
	"github.com/projectdiscovery/gologger"
)

// Notifier raises completion events on the Durable Functions orchestrator
// that queued the scan
type Notifier struct {
	durableBaseURL string
	durableKey     string
	httpClient     *http.Client
}

// NotificationPayload is the event body raised on the orchestrator
type NotificationPayload struct {
	ScanID     string `json:"scan_id"`
	Task       string `json:"task"`
	Status     string `json:"status"`
	BlobPath   string `json:"blob_path,omitempty"`
	HostsTotal int    `json:"hosts_total"`
	HostsUp    int    `json:"hosts_up"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// NewNotifier creates a notifier from DURABLE_API_ENDPOINT and DURABLE_API_KEY
func NewNotifier(timeout time.Duration) (*Notifier, error) {
	durableBaseURL := os.Getenv("DURABLE_API_ENDPOINT")
	durableKey := os.Getenv("DURABLE_API_KEY")

	if durableBaseURL == "" {
		return nil, fmt.Errorf("DURABLE_API_ENDPOINT environment variable is required")
	}
	if durableKey == "" {
		return nil, fmt.Errorf("DURABLE_API_KEY environment variable is required")
	}

	return &Notifier{
		durableBaseURL: strings.TrimRight(durableBaseURL, "/"),
		durableKey:     durableKey,
		httpClient:     &http.Client{Timeout: timeout},
	}, nil
}

// NewConfiguredNotifier returns nil without error when notifications are off
func NewConfiguredNotifier(enableNotifications bool, timeout time.Duration) (*Notifier, error) {
	if !enableNotifications {
		return nil, nil
	}

	notifier, err := NewNotifier(timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notification service: %w", err)
	}

	return notifier, nil
}

// NewPayload summarises a task result for the orchestrator
func NewPayload(result *models.TaskResult, blobPath string) NotificationPayload {
	payload := NotificationPayload{
		ScanID:    result.ScanID,
		Task:      string(result.Task),
		Status:    string(result.Status),
		BlobPath:  blobPath,
		Error:     result.Error,
		Timestamp: result.Timestamp,
	}
	if report := reportOf(result); report != nil {
		payload.HostsTotal = report.HostsTotal
		payload.HostsUp = report.HostsUp
	}
	return payload
}

// EventName is the orchestrator event raised when a task finishes
func EventName(task models.Task) string {
	return fmt.Sprintf("%s_completed", task)
}

// NotifyCompletion raises the completion event for instanceID
func (n *Notifier) NotifyCompletion(ctx context.Context, instanceID string, payload NotificationPayload) error {
	if n == nil {
		return nil
	}
	if instanceID == "" {
		gologger.Debug().Msgf("No orchestrator instance for scan %s, skipping notification", payload.ScanID)
		return nil
	}

	eventName := EventName(models.Task(payload.Task))
	notificationURL := fmt.Sprintf("%s/instances/%s/raiseEvent/%s?code=%s",
		n.durableBaseURL, url.PathEscape(instanceID), eventName, url.QueryEscape(n.durableKey))

	gologger.Info().Msgf("Raising %s on orchestrator instance %s", eventName, instanceID)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notificationURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification request failed with status %d", resp.StatusCode)
	}

	gologger.Info().Msgf("Successfully sent event '%s' for instance '%s'. Status: %d", eventName, instanceID, resp.StatusCode)
	return nil
}

// NotifyCompletionWithRetry retries NotifyCompletion with exponential backoff
func (n *Notifier) NotifyCompletionWithRetry(ctx context.Context, instanceID string, payload NotificationPayload) error {
	if n == nil {
		return nil
	}

	maxRetries := 3
	baseDelay := 1 * time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := n.NotifyCompletion(ctx, instanceID, payload)
		if err == nil {
			return nil
		}

		if attempt == maxRetries {
			return fmt.Errorf("failed to send notification after %d attempts: %w", maxRetries+1, err)
		}

		delay := baseDelay * time.Duration(1<<attempt)
		gologger.Warning().Msgf("Notification failed (attempt %d/%d), retrying in %v: %v", attempt+1, maxRetries+1, delay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("max retries exceeded")
}
