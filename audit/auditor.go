// Package audit emits structured authentication audit events and watches
// per-client failure history for suspicious patterns. Events are a closed set
// of record shapes (SuccessEvent, FailureEvent, ExpiryEvent, SecurityAlert)
// rendered through a pluggable logger; nothing is persisted.
package audit

import (
	"sync"
	"time"

	"github.com/realmgate/realmgate/autherr"
)

// Logger is the minimal logging interface the auditor writes through.
// It is compatible with log/slog.Logger and with the adapters in the root
// package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder is the subset of the auditor the token validator needs. Keeping it
// small lets tests substitute a recording fake.
type Recorder interface {
	LogFailure(e FailureEvent)
	LogExpiry(e ExpiryEvent)
	LogAlert(a SecurityAlert)
}

// Config toggles individual event streams. The zero value disables
// everything; DefaultConfig enables all streams.
type Config struct {
	LogSuccess bool
	LogFailure bool
	LogExpiry  bool
	LogAlerts  bool
}

// DefaultConfig enables every audit stream.
func DefaultConfig() Config {
	return Config{LogSuccess: true, LogFailure: true, LogExpiry: true, LogAlerts: true}
}

// Auditor writes audit events and runs the failure-pattern detector. Safe for
// concurrent use; each instance owns its own tracking state so tests can
// construct isolated auditors.
type Auditor struct {
	logger  Logger
	cfg     Config
	now     func() time.Time
	tracker *failureTracker

	mu sync.Mutex
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithConfig replaces the event-stream toggles.
func WithConfig(cfg Config) Option {
	return func(a *Auditor) { a.cfg = cfg }
}

// WithTrackingWindow sets the failure-tracking window. Entries idle for twice
// the window are purged.
func WithTrackingWindow(d time.Duration) Option {
	return func(a *Auditor) { a.tracker.window = d }
}

// WithFailureThreshold sets the count that triggers the high-frequency alert.
func WithFailureThreshold(n int) Option {
	return func(a *Auditor) { a.tracker.failureThreshold = n }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		a.now = now
		a.tracker.now = now
	}
}

// New builds an Auditor writing through logger.
func New(logger Logger, opts ...Option) *Auditor {
	a := &Auditor{
		logger:  logger,
		cfg:     DefaultConfig(),
		now:     time.Now,
		tracker: newFailureTracker(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LogSuccess emits a success audit event.
func (a *Auditor) LogSuccess(e SuccessEvent) {
	if !a.cfg.LogSuccess {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = a.now()
	}
	a.logger.Info("authentication succeeded",
		"event", "auth_success",
		"correlation_id", e.CorrelationID,
		"subject", e.Subject,
		"username", e.Username,
		"source_ip", e.SourceIP,
		"endpoint", e.Endpoint,
		"method", e.Method,
		"service_account", e.ServiceAcct,
	)
}

// LogFailure emits a failure audit event.
func (a *Auditor) LogFailure(e FailureEvent) {
	if !a.cfg.LogFailure {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = a.now()
	}
	a.logger.Warn("authentication failed",
		"event", "auth_failure",
		"correlation_id", e.CorrelationID,
		"kind", string(e.Kind),
		"reason", e.Reason,
		"source_ip", e.SourceIP,
		"endpoint", e.Endpoint,
		"method", e.Method,
		"user_agent", e.UserAgent,
	)
}

// LogExpiry emits an expired-token audit event.
func (a *Auditor) LogExpiry(e ExpiryEvent) {
	if !a.cfg.LogExpiry {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = a.now()
	}
	a.logger.Info("expired token rejected",
		"event", "token_expiry",
		"correlation_id", e.CorrelationID,
		"subject", e.Subject,
		"source_ip", e.SourceIP,
		"expired_at", e.ExpiredAt,
	)
}

// LogAlert emits a security alert. HIGH severity alerts go to the error
// channel so they can be routed to paging sinks; everything else is a warning.
func (a *Auditor) LogAlert(alert SecurityAlert) {
	if !a.cfg.LogAlerts {
		return
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = a.now()
	}
	args := []any{
		"event", "security_alert",
		"alert_type", alert.Type,
		"severity", string(alert.Severity),
		"source_ip", alert.SourceIP,
	}
	for k, v := range alert.Details {
		args = append(args, k, v)
	}
	if alert.Severity == SeverityHigh {
		a.logger.Error("security alert", args...)
		return
	}
	a.logger.Warn("security alert", args...)
}

// RecordFailure updates the failure history for clientKey and raises one
// alert per triggered heuristic. endpoint and method become part of the
// recorded pattern tag; userAgent feeds the client-signature heuristic.
func (a *Auditor) RecordFailure(clientKey string, kind autherr.Kind, endpoint, method, userAgent string) {
	a.mu.Lock()
	alerts := a.tracker.record(clientKey, kind, endpoint, method, userAgent)
	a.mu.Unlock()

	for _, alert := range alerts {
		a.LogAlert(alert)
	}
}

// FailureCount reports the number of failures recorded for clientKey within
// the current tracking window.
func (a *Auditor) FailureCount(clientKey string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracker.count(clientKey)
}
