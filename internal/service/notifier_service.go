package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
	"github.com/kursadbilgin/simplesla-notifier/internal/observability"
	"github.com/kursadbilgin/simplesla-notifier/internal/payload"
	"github.com/kursadbilgin/simplesla-notifier/internal/provider"
	"go.uber.org/zap"
)

// DeliveryState is the single-shot lifecycle of one Perform call.
type DeliveryState string

const (
	StateNotStarted DeliveryState = "not_started"
	StateSkipped    DeliveryState = "skipped"
	StateSent       DeliveryState = "sent"
	StateCompleted  DeliveryState = "completed"
)

func (s DeliveryState) String() string { return string(s) }

const (
	skipReasonResult    = "result_not_notifiable"
	skipReasonConfig    = "invalid_job_config"
	skipReasonDuplicate = "duplicate"
)

// DedupGuard remembers build completions that already produced a request.
type DedupGuard interface {
	FirstDelivery(ctx context.Context, key string) (bool, error)
}

// Report describes what Perform did. Delivery failures are recorded here and
// never returned to the host pipeline.
type Report struct {
	State      DeliveryState
	SkipReason string
	URL        string
	StatusCode int
	ErrorKind  provider.ErrorKind
	Err        error
}

type NotifierService struct {
	provider provider.Provider
	guard    DedupGuard
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewNotifierService(p provider.Provider, logger *zap.Logger) (*NotifierService, error) {
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotifierService{
		provider: p,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (s *NotifierService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *NotifierService) SetDedupGuard(guard DedupGuard) {
	if s == nil {
		return
	}
	s.guard = guard
}

// Perform is the build-completion callback. It sends at most one ticket and
// blocks until the request finishes.
func (s *NotifierService) Perform(
	ctx context.Context,
	outcome domain.BuildOutcome,
	cfg domain.NotificationConfig,
	rootURL string,
) Report {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := observability.WithContextLogger(s.logger, ctx).Named("simplesla").With(
		zap.String("job", outcome.FullJobName()),
		zap.Int("build", outcome.BuildNumber),
		zap.String("label", outcome.Label()),
		zap.String("result", outcome.Result.String()),
	)

	report := Report{State: StateNotStarted}

	if !outcome.Result.Notifiable() {
		logger.Debug("build result is not notified")
		return s.skip(report, skipReasonResult)
	}

	if err := cfg.Job.Validate(); err != nil {
		logger.Error("invalid job configuration, ticket not sent", zap.Error(err))
		report.Err = err
		return s.skip(report, skipReasonConfig)
	}

	if s.guard != nil {
		first, err := s.guard.FirstDelivery(ctx, dedupKey(outcome, cfg.Job))
		if err != nil {
			logger.Warn("dedup guard unavailable, sending anyway", zap.Error(err))
		} else if !first {
			logger.Info("ticket already sent for this build, skipping")
			return s.skip(report, skipReasonDuplicate)
		}
	}

	ticket, buildErr := payload.Build(outcome, cfg.Job, rootURL)
	if buildErr != nil {
		logger.Warn("ticket built with missing fields", zap.Error(buildErr))
	}

	report.URL = provider.TicketsURL(cfg.Settings.ServerName)
	logger.Info("calling url",
		zap.String("url", report.URL),
		zap.String("message", ticket.Status),
	)

	report.State = StateSent
	start := s.now()
	resp, err := s.provider.Send(ctx, cfg, ticket)
	s.metrics.ObserveNotificationSendDuration(ticket.Status, s.now().Sub(start))
	report.State = StateCompleted

	if err != nil {
		report.Err = err
		report.ErrorKind = provider.KindOf(err)
		logger.Error("ticket delivery failed",
			zap.String("errorKind", report.ErrorKind.String()),
			zap.Error(err),
		)
		s.metrics.IncNotificationFailed(report.ErrorKind.String())
		return report
	}

	report.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		logger.Warn("server response error code",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("body", resp.Body),
		)
		s.metrics.IncNotificationFailed(fmt.Sprintf("status_%d", resp.StatusCode))
		return report
	}

	logger.Debug("ticket delivered", zap.Int("statusCode", resp.StatusCode))
	s.metrics.IncNotificationSent(ticket.Status)
	return report
}

func (s *NotifierService) skip(report Report, reason string) Report {
	report.State = StateSkipped
	report.SkipReason = reason
	s.metrics.IncNotificationSkipped(reason)
	return report
}

// dedupKey encodes the build identity as a JSON array so that separators inside
// project or job names cannot make two builds share a key.
func dedupKey(outcome domain.BuildOutcome, job domain.JobConfig) string {
	key, _ := json.Marshal([]any{job.Project, outcome.FullJobName(), outcome.BuildNumber, outcome.Result.String()})
	return string(key)
}
