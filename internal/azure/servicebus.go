package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/allsafeASM/rmap/internal/messaging"
	"github.com/allsafeASM/rmap/internal/models"
	"github.com/projectdiscovery/gologger"
)

// maxDeliveryAttempts is how often a failing message is handed back to the
// queue before it is dead-lettered
const maxDeliveryAttempts = 3

// ServiceBusClient wraps Azure Service Bus operations
type ServiceBusClient struct {
	client    *azservicebus.Client
	queueName string
}

// NewServiceBusClient creates a new Service Bus client
func NewServiceBusClient(connectionString, queueName string) (*ServiceBusClient, error) {
	client, err := azservicebus.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create service bus client: %w", err)
	}

	return &ServiceBusClient{
		client:    client,
		queueName: queueName,
	}, nil
}

// Close closes the Service Bus client
func (s *ServiceBusClient) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// HealthCheck peeks the task queue to verify connectivity and permissions
func (s *ServiceBusClient) HealthCheck(ctx context.Context) error {
	receiver, err := s.client.NewReceiverForQueue(s.queueName, nil)
	if err != nil {
		return fmt.Errorf("failed to create receiver: %w", err)
	}
	defer receiver.Close(ctx)

	if _, err := receiver.PeekMessages(ctx, 1, nil); err != nil {
		return fmt.Errorf("failed to peek queue %s: %w", s.queueName, err)
	}
	return nil
}

// Publisher sends JSON messages to one queue over a long-lived sender
type Publisher struct {
	sender    *azservicebus.Sender
	queueName string
}

// NewPublisher opens a sender for queueName
func (s *ServiceBusClient) NewPublisher(queueName string) (*Publisher, error) {
	sender, err := s.client.NewSender(queueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender for %s: %w", queueName, err)
	}
	return &Publisher{sender: sender, queueName: queueName}, nil
}

// Publish marshals message to JSON and sends it
func (p *Publisher) Publish(ctx context.Context, message any) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	contentType := "application/json"
	return p.sender.SendMessage(ctx, &azservicebus.Message{
		Body:        body,
		ContentType: &contentType,
	}, nil)
}

// Close closes the underlying sender
func (p *Publisher) Close(ctx context.Context) error {
	return p.sender.Close(ctx)
}

// ProcessMessages receives task messages one at a time and settles each
// according to the handler outcome: completed on success, abandoned while
// retryable attempts remain, dead-lettered otherwise.
func (s *ServiceBusClient) ProcessMessages(ctx context.Context, handler messaging.Handler, pollInterval, lockRenewalInterval, maxLockRenewalTime, scannerTimeout time.Duration) error {
	receiver, err := s.client.NewReceiverForQueue(s.queueName, nil)
	if err != nil {
		return fmt.Errorf("failed to create receiver: %w", err)
	}
	defer receiver.Close(context.Background())

	processor := messaging.NewMessageProcessor(receiver, lockRenewalInterval, maxLockRenewalTime, scannerTimeout)
	gologger.Info().Msgf("Listening for scan tasks on queue %s", s.queueName)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		messages, err := receiver.ReceiveMessages(ctx, 1, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			gologger.Error().Msgf("Failed to receive messages: %v", err)
			sleep(ctx, pollInterval)
			continue
		}

		if len(messages) == 0 {
			sleep(ctx, pollInterval)
			continue
		}

		message := messages[0]
		gologger.Debug().Msgf("Received message %s (delivery %d)", message.MessageID, message.DeliveryCount)

		result := processor.ProcessMessage(ctx, message, handler)
		s.settle(ctx, receiver, message, result)
	}
}

func (s *ServiceBusClient) settle(ctx context.Context, receiver *azservicebus.Receiver, message *azservicebus.ReceivedMessage, result *models.MessageProcessingResult) {
	// Settlement must survive shutdown of the processing context
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if result.Success {
		if err := receiver.CompleteMessage(settleCtx, message, nil); err != nil {
			gologger.Error().Msgf("Failed to complete message: %v", err)
			return
		}
		gologger.Info().Msg("Message completed successfully")
		return
	}

	if result.Retryable && int(message.DeliveryCount) < maxDeliveryAttempts {
		properties := map[string]any{
			"RetryCount": result.RetryCount + 1,
			"LastError":  result.Error.Error(),
		}
		if err := receiver.AbandonMessage(settleCtx, message, &azservicebus.AbandonMessageOptions{
			PropertiesToModify: properties,
		}); err != nil {
			gologger.Error().Msgf("Failed to abandon message: %v", err)
			return
		}
		gologger.Warning().Msgf("Message abandoned for redelivery (delivery %d/%d): %v", message.DeliveryCount, maxDeliveryAttempts, result.Error)
		return
	}

	reason := "ProcessingFailed"
	description := fmt.Sprintf("Failed after %d attempts: %v", result.RetryCount+1, result.Error)
	if err := receiver.DeadLetterMessage(settleCtx, message, &azservicebus.DeadLetterOptions{
		Reason:           &reason,
		ErrorDescription: &description,
	}); err != nil {
		gologger.Error().Msgf("Failed to move message to dead letter queue: %v", err)
		return
	}
	gologger.Error().Msgf("Message moved to dead letter queue: %v", result.Error)
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
