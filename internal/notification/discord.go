package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/allsafeASM/rmap/internal/models"
	"github.com/projectdiscovery/gologger"
)

// DiscordNotifier handles sending notifications to Discord webhook
type DiscordNotifier struct {
	webhookURL string
	httpClient *http.Client
	enabled    bool
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
}

// DiscordEmbedField represents a field in a Discord embed
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordEmbedFooter represents the footer of a Discord embed
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordWebhookPayload represents the payload sent to Discord webhook
type DiscordWebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// NotificationStep represents different steps of a scan task
type NotificationStep string

const (
	StepTaskReceived  NotificationStep = "task_received"
	StepTaskCompleted NotificationStep = "task_completed"
	StepTaskFailed    NotificationStep = "task_failed"
	StepResultStored  NotificationStep = "result_stored"
)

// Color constants for Discord embeds
const (
	ColorInfo    = 0x3498db // Blue
	ColorSuccess = 0x2ecc71 // Green
	ColorWarning = 0xf39c12 // Orange
	ColorError   = 0xe74c3c // Red
)

// maxTargetsShown limits how many targets are listed in an embed
const maxTargetsShown = 5

// NewDiscordNotifier creates a Discord notifier from DISCORD_WEBHOOK_URL.
// Without a URL the notifier is disabled.
func NewDiscordNotifier(timeout time.Duration) (*DiscordNotifier, error) {
	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")

	if webhookURL == "" {
		return &DiscordNotifier{
			enabled: false,
		}, nil
	}

	return &DiscordNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		enabled:    true,
	}, nil
}

// NewConfiguredDiscordNotifier returns a disabled notifier when notifications
// are switched off in configuration
func NewConfiguredDiscordNotifier(enabled bool, timeout time.Duration) (*DiscordNotifier, error) {
	if !enabled {
		return &DiscordNotifier{enabled: false}, nil
	}
	return NewDiscordNotifier(timeout)
}

// IsEnabled returns whether Discord notifications are enabled
func (d *DiscordNotifier) IsEnabled() bool {
	return d != nil && d.enabled
}

// NotifyStep sends a notification for a specific step of a scan task
func (d *DiscordNotifier) NotifyStep(ctx context.Context, step NotificationStep, taskMsg *models.TaskMessage, result *models.TaskResult, err error) error {
	if !d.IsEnabled() {
		return nil
	}

	payload := d.createPayload(step, taskMsg, result, err)
	return d.SendWebhookWithRetry(ctx, payload)
}

// NotifyTaskReceived sends notification when a task is received
func (d *DiscordNotifier) NotifyTaskReceived(ctx context.Context, taskMsg *models.TaskMessage) error {
	return d.NotifyStep(ctx, StepTaskReceived, taskMsg, nil, nil)
}

// NotifyTaskCompleted sends notification when a scan completes
func (d *DiscordNotifier) NotifyTaskCompleted(ctx context.Context, taskMsg *models.TaskMessage, result *models.TaskResult) error {
	return d.NotifyStep(ctx, StepTaskCompleted, taskMsg, result, nil)
}

// NotifyTaskFailed sends notification when a task fails
func (d *DiscordNotifier) NotifyTaskFailed(ctx context.Context, taskMsg *models.TaskMessage, err error) error {
	return d.NotifyStep(ctx, StepTaskFailed, taskMsg, nil, err)
}

// NotifyResultStored sends notification when the report reached blob storage
func (d *DiscordNotifier) NotifyResultStored(ctx context.Context, taskMsg *models.TaskMessage, result *models.TaskResult) error {
	return d.NotifyStep(ctx, StepResultStored, taskMsg, result, nil)
}

// createPayload creates a Discord webhook payload based on the step and data
func (d *DiscordNotifier) createPayload(step NotificationStep, taskMsg *models.TaskMessage, result *models.TaskResult, err error) DiscordWebhookPayload {
	embed := DiscordEmbed{
		Timestamp: time.Now().Format(time.RFC3339),
		Fields:    taskFields(taskMsg),
	}

	switch step {
	case StepTaskReceived:
		embed.Title = "🔄 Scan Received"
		embed.Description = "New network scan received for processing"
		embed.Color = ColorInfo

	case StepTaskCompleted:
		embed.Title = "✅ Scan Completed"
		embed.Description = "Network scan completed successfully"
		embed.Color = ColorSuccess

		if report := reportOf(result); report != nil {
			highRisk := 0
			for _, host := range report.Hosts {
				if host.Risk == models.RiskHigh {
					highRisk++
				}
			}
			embed.Fields = append(embed.Fields,
				DiscordEmbedField{Name: "Hosts Up", Value: fmt.Sprintf("%d/%d", report.HostsUp, report.HostsTotal), Inline: true},
				DiscordEmbedField{Name: "Ports Per Host", Value: fmt.Sprintf("%d", report.PortsPerHost), Inline: true},
			)
			if highRisk > 0 {
				embed.Color = ColorWarning
				embed.Fields = append(embed.Fields, DiscordEmbedField{
					Name: "High Risk Hosts", Value: fmt.Sprintf("%d", highRisk), Inline: true,
				})
			}
		}

	case StepTaskFailed:
		embed.Title = "❌ Scan Failed"
		embed.Description = "Network scan processing failed"
		embed.Color = ColorError
		if err != nil {
			embed.Fields = append(embed.Fields, DiscordEmbedField{
				Name: "Error", Value: err.Error(), Inline: false,
			})
		}

	case StepResultStored:
		embed.Title = "💾 Report Stored"
		embed.Description = "Scan report stored successfully"
		embed.Color = ColorSuccess
	}

	embed.Footer = &DiscordEmbedFooter{
		Text: "AllSafe ASM Network Scanner",
	}

	return DiscordWebhookPayload{
		Username: "AllSafe ASM Bot",
		Embeds:   []DiscordEmbed{embed},
	}
}

func taskFields(taskMsg *models.TaskMessage) []DiscordEmbedField {
	if taskMsg == nil {
		return nil
	}

	fields := []DiscordEmbedField{
		{Name: "Task", Value: string(taskMsg.Task), Inline: true},
		{Name: "Scan ID", Value: taskMsg.ScanID, Inline: true},
	}

	if targets := taskMsg.Request.IPAddresses; len(targets) > 0 {
		shown := targets
		if len(shown) > maxTargetsShown {
			shown = shown[:maxTargetsShown]
		}
		value := strings.Join(shown, ", ")
		if len(targets) > maxTargetsShown {
			value += fmt.Sprintf(" (+%d more)", len(targets)-maxTargetsShown)
		}
		fields = append(fields, DiscordEmbedField{Name: "Targets", Value: value, Inline: false})
	}
	if taskMsg.InputBlobPath != "" {
		fields = append(fields, DiscordEmbedField{Name: "Hosts File", Value: taskMsg.InputBlobPath, Inline: false})
	}

	return fields
}

func reportOf(result *models.TaskResult) *models.NetworkScanReport {
	if result == nil {
		return nil
	}
	switch data := result.Data.(type) {
	case *models.NetworkScanReport:
		return data
	case models.NetworkScanReport:
		return &data
	}
	return nil
}

// sendWebhook sends the webhook payload to Discord
func (d *DiscordNotifier) sendWebhook(ctx context.Context, payload DiscordWebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook failed with status %d", resp.StatusCode)
	}

	gologger.Debug().Msgf("Discord webhook sent successfully. Status: %d", resp.StatusCode)
	return nil
}

// SendWebhookWithRetry sends a webhook with retry logic
func (d *DiscordNotifier) SendWebhookWithRetry(ctx context.Context, payload DiscordWebhookPayload) error {
	maxRetries := 3
	baseDelay := 1 * time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := d.sendWebhook(ctx, payload)
		if err == nil {
			return nil
		}

		if attempt == maxRetries {
			return fmt.Errorf("failed to send Discord webhook after %d attempts: %w", maxRetries+1, err)
		}

		delay := baseDelay * time.Duration(1<<attempt)
		gologger.Warning().Msgf("Discord webhook failed (attempt %d/%d), retrying in %v: %v", attempt+1, maxRetries+1, delay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("max retries exceeded for Discord webhook")
}
