package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// settlement is what happens to a delivery once it has been looked at.
type settlement int

const (
	settleAck settlement = iota
	settleReject
	settleRequeue
)

// RabbitMQConsumer reads completion signals one at a time. Malformed messages
// go to the dead-letter queue; handled ones are acked whatever the delivery
// outcome was.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	tag      string
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		tag:      consumerTagPrefix + uuid.NewString(),
		logger:   logger,
	}
}

// Consume blocks until ctx is done, re-subscribing after broker failures.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	switch {
	case c == nil || c.client == nil:
		return fmt.Errorf("consumer is not initialized")
	case queue == "":
		return fmt.Errorf("queue name is required")
	case handler == nil:
		return fmt.Errorf("message handler is required")
	}

	wait := reconnectBackoff
	for ctx.Err() == nil {
		err := c.subscribe(ctx, queue, handler)
		if ctx.Err() != nil {
			break
		}
		if err == nil {
			wait = reconnectBackoff
			continue
		}

		c.logger.Warn("subscription lost, resubscribing",
			zap.String("queue", queue),
			zap.Duration("retryIn", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
		wait = min(wait*2, maxBackoff)
	}

	return nil
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %q closed", queue)
			}
			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	decision := c.process(ctx, d, handler)

	var err error
	switch decision {
	case settleAck:
		err = d.Ack(false)
	case settleReject:
		err = d.Reject(false)
	case settleRequeue:
		err = d.Nack(false, true)
	}
	if err != nil {
		return fmt.Errorf("failed to settle delivery %d: %w", d.DeliveryTag, err)
	}

	return nil
}

func (c *RabbitMQConsumer) process(ctx context.Context, d amqp.Delivery, handler MessageHandler) settlement {
	logger := c.logger.With(
		zap.String("routingKey", d.RoutingKey),
		zap.String("messageId", d.MessageId),
	)

	var msg BuildCompletedMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		logger.Warn("rejecting message: invalid JSON", zap.Error(err))
		return settleReject
	}

	switch {
	case msg.CorrelationID != "":
	case d.CorrelationId != "":
		msg.CorrelationID = d.CorrelationId
	default:
		msg.CorrelationID = uuid.NewString()
	}
	logger = logger.With(zap.String("correlationId", msg.CorrelationID))

	if err := msg.Validate(); err != nil {
		logger.Warn("rejecting message: validation failed",
			zap.String("job", msg.JobName),
			zap.Int("build", msg.BuildNumber),
			zap.Error(err),
		)
		return settleReject
	}

	if err := handler(ctx, msg); err != nil {
		logger.Warn("handler failed, requeueing message", zap.Error(err))
		return settleRequeue
	}

	return settleAck
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
