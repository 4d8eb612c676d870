package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
)

const (
	ticketsPath = "/api/tickets"
	tokenHeader = "SLA_TOKEN"
)

// TicketsURL returns the endpoint tickets are posted to on server.
func TicketsURL(server string) string {
	return "https://" + domain.GlobalSettings{ServerName: server}.Server() + ticketsPath
}

// SimpleSLAProvider posts build tickets to a SimpleSLA monitoring server.
type SimpleSLAProvider struct {
	client *resty.Client
}

func NewSimpleSLAProvider() *SimpleSLAProvider {
	provider, _ := NewSimpleSLAProviderWithClient(resty.New())
	return provider
}

func NewSimpleSLAProviderWithClient(client *resty.Client) (*SimpleSLAProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	// A single attempt per build; the monitoring server is best-effort.
	client.SetRetryCount(0)

	return &SimpleSLAProvider{client: client}, nil
}

func (p *SimpleSLAProvider) Send(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint := TicketsURL(cfg.Settings.ServerName)

	// resty reads and closes the body before returning, on every path.
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaderVerbatim(tokenHeader, cfg.Job.Token).
		SetBody(ticket).
		Post(endpoint)
	if err != nil {
		return nil, &DeliveryError{
			Kind:    classify(err),
			URL:     endpoint,
			Message: "ticket request failed",
			Cause:   err,
		}
	}
	if response == nil {
		return nil, &DeliveryError{
			Kind:    KindUnknown,
			URL:     endpoint,
			Message: "empty response",
		}
	}

	return &ProviderResponse{
		URL:        endpoint,
		StatusCode: response.StatusCode(),
		Body:       strings.TrimSpace(response.String()),
	}, nil
}
