package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/allsafeASM/rmap/internal/models"
)

type countingRenewer struct {
	renewals int32
}

func (r *countingRenewer) RenewMessageLock(ctx context.Context, msg *azservicebus.ReceivedMessage, options *azservicebus.RenewMessageLockOptions) error {
	atomic.AddInt32(&r.renewals, 1)
	return nil
}

func newTestProcessor(renewer LockRenewer) *MessageProcessor {
	p := NewMessageProcessor(renewer, 10*time.Millisecond, time.Second, time.Second)
	p.baseDelay = time.Millisecond
	return p
}

func taskMessage(body string) *azservicebus.ReceivedMessage {
	return &azservicebus.ReceivedMessage{Body: []byte(body)}
}

func TestProcessMessageDecodesTask(t *testing.T) {
	var got *models.TaskMessage
	handler := func(ctx context.Context, msg *models.TaskMessage) *models.MessageProcessingResult {
		got = msg
		return &models.MessageProcessingResult{Success: true}
	}

	result := newTestProcessor(nil).ProcessMessage(context.Background(),
		taskMessage(`{"task":"network_scan","scan_id":"s1","request":{"ip_addresses":["10.0.0.1"],"ports":[22]}}`), handler)

	if !result.Success {
		t.Fatalf("Expected success, got %v", result.Error)
	}
	if got == nil || got.ScanID != "s1" || got.Request.IPAddresses[0] != "10.0.0.1" || got.Request.Ports[0] != 22 {
		t.Errorf("Unexpected decoded task %+v", got)
	}
}

func TestProcessMessageInvalidJSON(t *testing.T) {
	called := false
	handler := func(ctx context.Context, msg *models.TaskMessage) *models.MessageProcessingResult {
		called = true
		return &models.MessageProcessingResult{Success: true}
	}

	result := newTestProcessor(nil).ProcessMessage(context.Background(), taskMessage(`{not json`), handler)

	if result.Success || result.Retryable {
		t.Errorf("Expected permanent failure, got %+v", result)
	}
	if called {
		t.Error("Handler must not run for undecodable messages")
	}
}

func TestProcessMessageRetries(t *testing.T) {
	var attempts int32
	handler := func(ctx context.Context, msg *models.TaskMessage) *models.MessageProcessingResult {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return &models.MessageProcessingResult{Error: errors.New("connection reset"), Retryable: true}
		}
		return &models.MessageProcessingResult{Success: true}
	}

	result := newTestProcessor(nil).ProcessMessage(context.Background(), taskMessage(`{"task":"network_scan"}`), handler)

	if !result.Success {
		t.Fatalf("Expected eventual success, got %v", result.Error)
	}
	if result.RetryCount != 2 {
		t.Errorf("Expected retry count 2, got %d", result.RetryCount)
	}
}

func TestProcessMessageStopsOnPermanentError(t *testing.T) {
	var attempts int32
	handler := func(ctx context.Context, msg *models.TaskMessage) *models.MessageProcessingResult {
		atomic.AddInt32(&attempts, 1)
		return &models.MessageProcessingResult{Error: errors.New("scan_id is required")}
	}

	result := newTestProcessor(nil).ProcessMessage(context.Background(), taskMessage(`{}`), handler)

	if result.Success || atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected a single failed attempt, got %d attempts", attempts)
	}
}

func TestProcessMessageRenewsLock(t *testing.T) {
	renewer := &countingRenewer{}
	handler := func(ctx context.Context, msg *models.TaskMessage) *models.MessageProcessingResult {
		time.Sleep(100 * time.Millisecond)
		return &models.MessageProcessingResult{Success: true}
	}

	result := newTestProcessor(renewer).ProcessMessage(context.Background(), taskMessage(`{}`), handler)

	if !result.Success {
		t.Fatalf("Expected success, got %v", result.Error)
	}
	if atomic.LoadInt32(&renewer.renewals) == 0 {
		t.Error("Expected the lock to be renewed while the handler ran")
	}
}

func TestProcessMessageDeadlineIsNotRetried(t *testing.T) {
	var (
		attempts int32
		running  int32
	)
	handler := func(ctx context.Context, msg *models.TaskMessage) *models.MessageProcessingResult {
		atomic.AddInt32(&attempts, 1)
		if atomic.AddInt32(&running, 1) > 1 {
			t.Error("Handler attempts overlapped")
		}
		defer atomic.AddInt32(&running, -1)

		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return &models.MessageProcessingResult{Error: ctx.Err(), Retryable: false}
	}

	p := NewMessageProcessor(nil, 0, time.Second, 50*time.Millisecond)
	p.baseDelay = time.Millisecond

	result := p.ProcessMessage(context.Background(), taskMessage(`{"task":"network_scan"}`), handler)

	if result.Success || result.Retryable {
		t.Errorf("Expected permanent failure, got %+v", result)
	}
	if !errors.Is(result.Error, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", result.Error)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("Expected a single attempt, got %d", got)
	}
}

func TestProcessMessageDeadlineOverridesRetryable(t *testing.T) {
	var attempts int32
	handler := func(ctx context.Context, msg *models.TaskMessage) *models.MessageProcessingResult {
		atomic.AddInt32(&attempts, 1)
		<-ctx.Done()
		return &models.MessageProcessingResult{Error: ctx.Err(), Retryable: true}
	}

	p := NewMessageProcessor(nil, 0, time.Second, 20*time.Millisecond)
	p.baseDelay = time.Millisecond

	result := p.ProcessMessage(context.Background(), taskMessage(`{}`), handler)

	if result.Retryable || atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected one non-retryable attempt, got %d attempts, %+v", attempts, result)
	}
}
