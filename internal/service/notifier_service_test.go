package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
	"github.com/kursadbilgin/simplesla-notifier/internal/observability"
	"github.com/kursadbilgin/simplesla-notifier/internal/provider"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testOutcome(result domain.BuildResult) domain.BuildOutcome {
	return domain.BuildOutcome{
		JobName:     "Demo",
		BuildNumber: 42,
		DisplayName: "#42",
		Result:      result,
		StartedAt:   time.Date(2026, time.October, 16, 9, 30, 5, 0, time.UTC),
		URL:         "job/Demo/42/",
	}
}

func testConfig() domain.NotificationConfig {
	return domain.NotificationConfig{
		Job: domain.JobConfig{Project: "Demo", Token: "abc123"},
	}
}

func newObservedNotifier(t *testing.T, p provider.Provider) (*NotifierService, *observer.ObservedLogs) {
	t.Helper()

	core, recorded := observer.New(zapcore.DebugLevel)
	svc, err := NewNotifierService(p, zap.New(core))
	if err != nil {
		t.Fatalf("NewNotifierService() error = %v", err)
	}
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	return svc, recorded
}

func countLevel(recorded *observer.ObservedLogs, level zapcore.Level) int {
	count := 0
	for _, entry := range recorded.All() {
		if entry.Level == level {
			count++
		}
	}
	return count
}

func TestNewNotifierServiceRequiresProvider(t *testing.T) {
	t.Parallel()

	if _, err := NewNotifierService(nil, nil); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestNotifierServicePerformGatesOnResult(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		result    domain.BuildResult
		wantCalls int32
		wantState DeliveryState
	}{
		{result: domain.ResultSuccess, wantCalls: 1, wantState: StateCompleted},
		{result: domain.ResultUnstable, wantCalls: 1, wantState: StateCompleted},
		{result: domain.ResultFailure, wantCalls: 1, wantState: StateCompleted},
		{result: domain.ResultNotBuilt, wantCalls: 0, wantState: StateSkipped},
		{result: domain.ResultAborted, wantCalls: 0, wantState: StateSkipped},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.result.String(), func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			fake := &fakeProvider{
				sendFn: func(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error) {
					calls.Add(1)
					if ticket.Status != tc.result.String() {
						t.Errorf("ticket status = %q, want %q", ticket.Status, tc.result)
					}
					return &provider.ProviderResponse{StatusCode: http.StatusOK}, nil
				},
			}

			svc, _ := newObservedNotifier(t, fake)
			report := svc.Perform(context.Background(), testOutcome(tc.result), testConfig(), "http://ci.example.com")

			if got := calls.Load(); got != tc.wantCalls {
				t.Fatalf("provider calls = %d, want %d", got, tc.wantCalls)
			}
			if report.State != tc.wantState {
				t.Fatalf("state = %s, want %s", report.State, tc.wantState)
			}
			if tc.wantCalls == 0 && report.SkipReason != skipReasonResult {
				t.Fatalf("skip reason = %q, want %q", report.SkipReason, skipReasonResult)
			}
		})
	}
}

func TestNotifierServicePerformEndToEnd(t *testing.T) {
	t.Parallel()

	var gotURL, gotToken string
	var gotBody []byte
	client := resty.New().SetTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		gotToken = headerValue(r.Header, "SLA_TOKEN")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		gotBody = body
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("")),
			Request:    r,
		}, nil
	}))
	p, err := provider.NewSimpleSLAProviderWithClient(client)
	if err != nil {
		t.Fatalf("NewSimpleSLAProviderWithClient() error = %v", err)
	}

	svc, recorded := newObservedNotifier(t, p)
	report := svc.Perform(context.Background(), testOutcome(domain.ResultFailure), testConfig(), "http://ci.example.com")

	if report.State != StateCompleted || report.Err != nil {
		t.Fatalf("report = %+v, want completed without error", report)
	}
	if report.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want 200", report.StatusCode)
	}
	if gotURL != "https://simplesla.ebit.lv/api/tickets" {
		t.Fatalf("url = %q, want https://simplesla.ebit.lv/api/tickets", gotURL)
	}
	if gotToken != "abc123" {
		t.Fatalf("SLA_TOKEN = %q, want abc123", gotToken)
	}
	for _, fragment := range []string{`"status":"FAILURE"`, `"url":"http://ci.example.com/job/Demo/42/"`, `"resolution":null`} {
		if !strings.Contains(string(gotBody), fragment) {
			t.Fatalf("body %s does not contain %s", gotBody, fragment)
		}
	}

	var parsed map[string]any
	if err := json.Unmarshal(gotBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["issue_created_at"] != parsed["issue_updated_at"] {
		t.Fatalf("issue_created_at = %v, issue_updated_at = %v", parsed["issue_created_at"], parsed["issue_updated_at"])
	}

	if got := countLevel(recorded, zapcore.WarnLevel) + countLevel(recorded, zapcore.ErrorLevel); got != 0 {
		t.Fatalf("warn/error entries = %d, want 0", got)
	}
	for _, entry := range recorded.All() {
		for key, value := range entry.ContextMap() {
			if s, ok := value.(string); ok && strings.Contains(s, "abc123") {
				t.Fatalf("token leaked into log field %q", key)
			}
		}
	}
}

func TestNotifierServicePerformTransportFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fake := &fakeProvider{
		sendFn: func(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error) {
			calls.Add(1)
			return nil, &provider.DeliveryError{
				Kind:    provider.KindTransport,
				Message: "ticket request failed",
				Cause:   errors.New("connection refused"),
			}
		},
	}

	svc, recorded := newObservedNotifier(t, fake)
	metrics := observability.NewMetrics()
	svc.SetMetrics(metrics)

	report := svc.Perform(context.Background(), testOutcome(domain.ResultFailure), testConfig(), "http://ci.example.com")

	if calls.Load() != 1 {
		t.Fatalf("provider calls = %d, want 1", calls.Load())
	}
	if report.State != StateCompleted {
		t.Fatalf("state = %s, want completed", report.State)
	}
	if report.ErrorKind != provider.KindTransport {
		t.Fatalf("error kind = %s, want transport", report.ErrorKind)
	}

	errorEntries := recorded.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(errorEntries) != 1 {
		t.Fatalf("error entries = %d, want 1", len(errorEntries))
	}
	if got := errorEntries[0].ContextMap()["errorKind"]; got != "transport" {
		t.Fatalf("errorKind = %v, want transport", got)
	}
	if errorEntries[0].LoggerName != "simplesla" {
		t.Fatalf("logger name = %q, want simplesla", errorEntries[0].LoggerName)
	}
	if got := countLevel(recorded, zapcore.WarnLevel); got != 0 {
		t.Fatalf("warn entries = %d, want 0", got)
	}
}

func TestNotifierServicePerformNonOKStatusWarnsOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fake := &fakeProvider{
		sendFn: func(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error) {
			calls.Add(1)
			return &provider.ProviderResponse{StatusCode: http.StatusInternalServerError, Body: "boom"}, nil
		},
	}

	svc, recorded := newObservedNotifier(t, fake)
	report := svc.Perform(context.Background(), testOutcome(domain.ResultSuccess), testConfig(), "http://ci.example.com")

	if calls.Load() != 1 {
		t.Fatalf("provider calls = %d, want 1", calls.Load())
	}
	if report.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status code = %d, want 500", report.StatusCode)
	}
	if report.Err != nil {
		t.Fatalf("report error = %v, want nil", report.Err)
	}

	warnEntries := recorded.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warnEntries) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(warnEntries))
	}
	if got := warnEntries[0].ContextMap()["statusCode"]; got != int64(500) {
		t.Fatalf("statusCode = %v (%T), want 500", got, got)
	}
	if got := countLevel(recorded, zapcore.ErrorLevel); got != 0 {
		t.Fatalf("error entries = %d, want 0", got)
	}
}

func TestNotifierServicePerformInvalidJobConfig(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{
		sendFn: func(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error) {
			t.Fatal("provider must not be called without a token")
			return nil, nil
		},
	}

	svc, recorded := newObservedNotifier(t, fake)
	cfg := testConfig()
	cfg.Job.Token = " "

	report := svc.Perform(context.Background(), testOutcome(domain.ResultFailure), cfg, "http://ci.example.com")
	if report.State != StateSkipped || report.SkipReason != skipReasonConfig {
		t.Fatalf("report = %+v, want skipped for invalid config", report)
	}
	if !errors.Is(report.Err, domain.ErrValidation) {
		t.Fatalf("report error = %v, want ErrValidation", report.Err)
	}
	if got := countLevel(recorded, zapcore.ErrorLevel); got != 1 {
		t.Fatalf("error entries = %d, want 1", got)
	}
}

func TestNotifierServicePerformWithoutRootURL(t *testing.T) {
	t.Parallel()

	var gotTicket domain.Ticket
	fake := &fakeProvider{
		sendFn: func(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error) {
			gotTicket = ticket
			return &provider.ProviderResponse{StatusCode: http.StatusOK}, nil
		},
	}

	svc, recorded := newObservedNotifier(t, fake)
	report := svc.Perform(context.Background(), testOutcome(domain.ResultUnstable), testConfig(), "")

	if report.State != StateCompleted {
		t.Fatalf("state = %s, want completed", report.State)
	}
	if gotTicket.URL != "job/Demo/42/" {
		t.Fatalf("ticket url = %q, want relative path", gotTicket.URL)
	}
	if got := countLevel(recorded, zapcore.WarnLevel); got != 1 {
		t.Fatalf("warn entries = %d, want 1", got)
	}
}

func TestNotifierServicePerformUsesConfiguredServer(t *testing.T) {
	t.Parallel()

	var gotServer string
	fake := &fakeProvider{
		sendFn: func(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error) {
			gotServer = cfg.Settings.Server()
			return &provider.ProviderResponse{StatusCode: http.StatusOK}, nil
		},
	}

	svc, _ := newObservedNotifier(t, fake)
	cfg := testConfig()
	cfg.Settings.ServerName = "sla.internal:8443"

	report := svc.Perform(context.Background(), testOutcome(domain.ResultSuccess), cfg, "http://ci")
	if gotServer != "sla.internal:8443" {
		t.Fatalf("server = %q, want sla.internal:8443", gotServer)
	}
	if report.URL != "https://sla.internal:8443/api/tickets" {
		t.Fatalf("report url = %q", report.URL)
	}
}

func TestNotifierServicePerformDedupGuard(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fake := &fakeProvider{
		sendFn: func(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error) {
			calls.Add(1)
			return &provider.ProviderResponse{StatusCode: http.StatusOK}, nil
		},
	}

	seen := map[string]bool{}
	guard := &fakeDedupGuard{
		firstDeliveryFn: func(ctx context.Context, key string) (bool, error) {
			if seen[key] {
				return false, nil
			}
			seen[key] = true
			return true, nil
		},
	}

	svc, _ := newObservedNotifier(t, fake)
	svc.SetDedupGuard(guard)

	first := svc.Perform(context.Background(), testOutcome(domain.ResultFailure), testConfig(), "http://ci")
	second := svc.Perform(context.Background(), testOutcome(domain.ResultFailure), testConfig(), "http://ci")

	if first.State != StateCompleted {
		t.Fatalf("first state = %s, want completed", first.State)
	}
	if second.State != StateSkipped || second.SkipReason != skipReasonDuplicate {
		t.Fatalf("second report = %+v, want duplicate skip", second)
	}
	if calls.Load() != 1 {
		t.Fatalf("provider calls = %d, want 1", calls.Load())
	}
	if _, ok := seen[`["Demo","Demo",42,"FAILURE"]`]; !ok {
		t.Fatalf("dedup keys = %v, want [\"Demo\",\"Demo\",42,\"FAILURE\"]", seen)
	}
}

func TestNotifierServicePerformDedupKeysDoNotCollide(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fake := &fakeProvider{
		sendFn: func(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error) {
			calls.Add(1)
			return &provider.ProviderResponse{StatusCode: http.StatusOK}, nil
		},
	}

	seen := map[string]bool{}
	svc, _ := newObservedNotifier(t, fake)
	svc.SetDedupGuard(&fakeDedupGuard{
		firstDeliveryFn: func(ctx context.Context, key string) (bool, error) {
			if seen[key] {
				return false, nil
			}
			seen[key] = true
			return true, nil
		},
	})

	builds := []struct {
		project string
		job     string
	}{
		{project: "a:b", job: "c"},
		{project: "a", job: "b:c"},
		{project: `a","b`, job: "c"},
	}

	for _, b := range builds {
		outcome := testOutcome(domain.ResultFailure)
		outcome.JobName = b.job
		cfg := domain.NotificationConfig{Job: domain.JobConfig{Project: b.project, Token: "abc123"}}

		report := svc.Perform(context.Background(), outcome, cfg, "http://ci")
		if report.State != StateCompleted {
			t.Fatalf("project %q job %q: report = %+v, want completed", b.project, b.job, report)
		}
	}

	if got := calls.Load(); got != int32(len(builds)) {
		t.Fatalf("provider calls = %d, want %d", got, len(builds))
	}
	if len(seen) != len(builds) {
		t.Fatalf("dedup keys = %v, want %d distinct keys", seen, len(builds))
	}
}

func TestNotifierServicePerformDedupGuardErrorStillSends(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fake := &fakeProvider{
		sendFn: func(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error) {
			calls.Add(1)
			return &provider.ProviderResponse{StatusCode: http.StatusOK}, nil
		},
	}

	svc, recorded := newObservedNotifier(t, fake)
	svc.SetDedupGuard(&fakeDedupGuard{
		firstDeliveryFn: func(ctx context.Context, key string) (bool, error) {
			return false, errors.New("redis down")
		},
	})

	report := svc.Perform(context.Background(), testOutcome(domain.ResultSuccess), testConfig(), "http://ci")
	if report.State != StateCompleted {
		t.Fatalf("state = %s, want completed", report.State)
	}
	if calls.Load() != 1 {
		t.Fatalf("provider calls = %d, want 1", calls.Load())
	}
	if got := countLevel(recorded, zapcore.WarnLevel); got != 1 {
		t.Fatalf("warn entries = %d, want 1", got)
	}
}

func TestNotifierServicePerformCorrelationID(t *testing.T) {
	t.Parallel()

	svc, recorded := newObservedNotifier(t, &fakeProvider{})
	ctx := observability.WithCorrelationID(context.Background(), "cid-42")

	svc.Perform(ctx, testOutcome(domain.ResultSuccess), testConfig(), "http://ci")

	entries := recorded.FilterMessage("calling url").All()
	if len(entries) != 1 {
		t.Fatalf("calling url entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if got := fields["correlationId"]; got != "cid-42" {
		t.Fatalf("correlationId = %v, want cid-42", got)
	}
	if got := fields["label"]; got != "Demo #42" {
		t.Fatalf("label = %v, want Demo #42", got)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func headerValue(h http.Header, name string) string {
	for key, values := range h {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

type fakeProvider struct {
	sendFn func(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error)
}

func (f *fakeProvider) Send(ctx context.Context, cfg domain.NotificationConfig, ticket domain.Ticket) (*provider.ProviderResponse, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, cfg, ticket)
	}
	return &provider.ProviderResponse{StatusCode: http.StatusOK}, nil
}

type fakeDedupGuard struct {
	firstDeliveryFn func(ctx context.Context, key string) (bool, error)
}

func (f *fakeDedupGuard) FirstDelivery(ctx context.Context, key string) (bool, error) {
	if f.firstDeliveryFn != nil {
		return f.firstDeliveryFn(ctx, key)
	}
	return true, nil
}
