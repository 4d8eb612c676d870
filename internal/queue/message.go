package queue

import (
	"fmt"

	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
)

// BuildCompletedMessage is the broker payload. It carries the same fields as
// the HTTP completion endpoint plus an optional correlation id.
type BuildCompletedMessage struct {
	CorrelationID string `json:"correlationId,omitempty"`
	domain.BuildCompletion
}

func (m BuildCompletedMessage) Validate() error {
	if err := m.BuildCompletion.Validate(); err != nil {
		return fmt.Errorf("invalid build completion: %w", err)
	}
	return nil
}
