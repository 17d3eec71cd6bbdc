package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/allsafeASM/rmap/internal/models"
	"github.com/projectdiscovery/gologger"
)

// Handler processes one decoded task message
type Handler func(context.Context, *models.TaskMessage) *models.MessageProcessingResult

// LockRenewer keeps a received message locked while it is processed.
// *azservicebus.Receiver satisfies it.
type LockRenewer interface {
	RenewMessageLock(ctx context.Context, msg *azservicebus.ReceivedMessage, options *azservicebus.RenewMessageLockOptions) error
}

// MessageProcessor handles message processing logic
type MessageProcessor struct {
	renewer             LockRenewer
	lockRenewalInterval time.Duration
	maxLockRenewalTime  time.Duration
	handlerTimeout      time.Duration
	maxRetries          int
	baseDelay           time.Duration
}

// NewMessageProcessor creates a new message processor
func NewMessageProcessor(renewer LockRenewer, lockRenewalInterval, maxLockRenewalTime, handlerTimeout time.Duration) *MessageProcessor {
	return &MessageProcessor{
		renewer:             renewer,
		lockRenewalInterval: lockRenewalInterval,
		maxLockRenewalTime:  maxLockRenewalTime,
		handlerTimeout:      handlerTimeout,
		maxRetries:          3,
		baseDelay:           1 * time.Second,
	}
}

// ProcessMessage decodes a message and runs the handler with in-process
// retries and exponential backoff for retryable failures. The message lock
// is renewed while the handler runs.
func (p *MessageProcessor) ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage, handler Handler) *models.MessageProcessingResult {
	var taskMsg models.TaskMessage
	if err := json.Unmarshal(message.Body, &taskMsg); err != nil {
		return &models.MessageProcessingResult{
			Success:   false,
			Error:     fmt.Errorf("failed to parse message as JSON: %w", err),
			Retryable: false,
		}
	}

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return &models.MessageProcessingResult{
				Success:    false,
				Error:      ctx.Err(),
				Retryable:  true,
				RetryCount: attempt,
			}
		}

		handlerCtx, cancel := context.WithTimeout(ctx, p.handlerTimeout)
		result := p.processWithRenewal(handlerCtx, message, &taskMsg, handler)
		cancel()

		result.RetryCount = attempt

		// A scan that ran out of time would time out again.
		if errors.Is(result.Error, context.DeadlineExceeded) {
			result.Retryable = false
		}

		if result.Success || !result.Retryable || attempt == p.maxRetries {
			return result
		}

		delay := p.baseDelay * time.Duration(1<<attempt)
		gologger.Warning().Msgf("Processing failed (attempt %d/%d), retrying in %v: %v", attempt+1, p.maxRetries+1, delay, result.Error)

		select {
		case <-ctx.Done():
			return &models.MessageProcessingResult{
				Success:    false,
				Error:      ctx.Err(),
				Retryable:  true,
				RetryCount: attempt,
			}
		case <-time.After(delay):
		}
	}

	return &models.MessageProcessingResult{
		Success:    false,
		Error:      fmt.Errorf("max retries exceeded"),
		Retryable:  false,
		RetryCount: p.maxRetries,
	}
}

// processWithRenewal runs the handler while a background loop renews the
// message lock. The handler is expected to return promptly once ctx ends;
// a timed out attempt never overlaps the next one.
func (p *MessageProcessor) processWithRenewal(ctx context.Context, message *azservicebus.ReceivedMessage, taskMsg *models.TaskMessage, handler Handler) *models.MessageProcessingResult {
	renewalCtx, cancelRenewal := context.WithTimeout(ctx, p.maxLockRenewalTime)
	defer cancelRenewal()

	if p.renewer != nil && p.lockRenewalInterval > 0 {
		go p.renewLock(renewalCtx, message)
	}

	result := handler(ctx, taskMsg)
	if result == nil {
		return &models.MessageProcessingResult{Success: false, Error: fmt.Errorf("handler returned no result")}
	}
	return result
}

func (p *MessageProcessor) renewLock(ctx context.Context, message *azservicebus.ReceivedMessage) {
	ticker := time.NewTicker(p.lockRenewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			gologger.Debug().Msg("Lock renewal stopped due to timeout or cancellation")
			return
		case <-ticker.C:
			if err := p.renewer.RenewMessageLock(ctx, message, nil); err != nil {
				gologger.Warning().Msgf("Failed to renew message lock: %v", err)
				return
			}
			gologger.Debug().Msg("Message lock renewed successfully")
		}
	}
}
