package provider

import (
	"context"

	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
)

// Provider is the outbound ticket delivery port.
type Provider interface {
	Send(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*ProviderResponse, error)
}

// ProviderResponse stores what the monitoring server answered.
type ProviderResponse struct {
	URL        string
	StatusCode int
	Body       string
}
