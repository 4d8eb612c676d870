package queue

import (
	"context"
	"fmt"
)

// Publisher publishes build completion messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg BuildCompletedMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg BuildCompletedMessage) error

// Consumer consumes build completion messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// BuildsCompletedQueue carries completion signals from the host pipeline.
const BuildsCompletedQueue = "builds.completed"

// DLQName returns the dead-letter queue name for a queue, e.g. dlq.builds.completed.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}
