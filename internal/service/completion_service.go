package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
	"github.com/kursadbilgin/simplesla-notifier/internal/observability"
	"go.uber.org/zap"
)

// BuildNotifier runs the completion callback for one build.
type BuildNotifier interface {
	Perform(ctx context.Context, outcome domain.BuildOutcome, cfg domain.NotificationConfig, rootURL string) Report
}

// SettingsSource exposes the current global settings.
type SettingsSource interface {
	Current() domain.GlobalSettings
}

// Source names the path a completion signal arrived on.
type Source string

const (
	SourceHTTP Source = "http"
	SourceAMQP Source = "amqp"
)

// CompletionService turns an inbound completion signal into one Perform call.
type CompletionService struct {
	notifier       BuildNotifier
	settings       SettingsSource
	defaultRootURL string
	logger         *zap.Logger
	metrics        *observability.Metrics
}

func NewCompletionService(
	notifier BuildNotifier,
	settings SettingsSource,
	defaultRootURL string,
	logger *zap.Logger,
) (*CompletionService, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CompletionService{
		notifier:       notifier,
		settings:       settings,
		defaultRootURL: strings.TrimSpace(defaultRootURL),
		logger:         logger,
	}, nil
}

func (s *CompletionService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Handle validates the signal and runs the notifier. Only a malformed signal
// yields an error; delivery problems are reported in the Report.
func (s *CompletionService) Handle(ctx context.Context, source Source, completion domain.BuildCompletion) (Report, error) {
	outcome, err := completion.Outcome()
	if err != nil {
		return Report{}, err
	}

	job := completion.Job()
	if err := job.Validate(); err != nil {
		return Report{}, err
	}

	s.metrics.IncCompletionReceived(string(source))

	rootURL := strings.TrimSpace(completion.RootURL)
	if rootURL == "" {
		rootURL = s.defaultRootURL
	}

	cfg := domain.NotificationConfig{
		Job:      job,
		Settings: s.settings.Current(),
	}

	report := s.notifier.Perform(ctx, outcome, cfg, rootURL)

	observability.WithContextLogger(s.logger, ctx).Debug("build completion handled",
		zap.String("job", outcome.FullJobName()),
		zap.Int("build", outcome.BuildNumber),
		zap.String("source", string(source)),
		zap.String("state", report.State.String()),
	)

	return report, nil
}
