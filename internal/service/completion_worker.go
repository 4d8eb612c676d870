package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
	"github.com/kursadbilgin/simplesla-notifier/internal/observability"
	"github.com/kursadbilgin/simplesla-notifier/internal/queue"
	"go.uber.org/zap"
)

// CompletionWorker consumes completion signals from the broker.
type CompletionWorker struct {
	consumer    queue.Consumer
	completions *CompletionService
	logger      *zap.Logger
}

func NewCompletionWorker(consumer queue.Consumer, completions *CompletionService, logger *zap.Logger) (*CompletionWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if completions == nil {
		return nil, fmt.Errorf("completion service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CompletionWorker{
		consumer:    consumer,
		completions: completions,
		logger:      logger,
	}, nil
}

// Start blocks until ctx is canceled.
func (w *CompletionWorker) Start(ctx context.Context) error {
	w.logger.Info("completion worker started", zap.String("queue", queue.BuildsCompletedQueue))
	err := w.consumer.Consume(ctx, queue.BuildsCompletedQueue, w.handleMessage)
	w.logger.Info("completion worker stopped")
	return err
}

func (w *CompletionWorker) handleMessage(ctx context.Context, msg queue.BuildCompletedMessage) error {
	// Leave the message on the queue if shutdown began before it was handled.
	if err := ctx.Err(); err != nil {
		return err
	}

	// Once started, a delivery runs to completion even if shutdown begins.
	ctx = observability.WithCorrelationID(context.WithoutCancel(ctx), msg.CorrelationID)

	if _, err := w.completions.Handle(ctx, SourceAMQP, msg.BuildCompletion); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			observability.WithContextLogger(w.logger, ctx).Warn("dropping invalid build completion", zap.Error(err))
			return nil
		}
		return err
	}

	return nil
}
