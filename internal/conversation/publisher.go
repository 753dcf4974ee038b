package conversation

import (
	"context"
	"fmt"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// Publisher enqueues inbound events for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueInbound publishes an inbound event job.
func (p *Publisher) EnqueueInbound(ctx context.Context, event InboundEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(jobTypeInbound, event)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("inbound event enqueued", "job_id", payload.ID, "event_id", event.EventID, "type", event.Type)
	return nil
}
