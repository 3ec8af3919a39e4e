package realmgate

import (
	"errors"
	"time"

	"github.com/realmgate/realmgate/audit"
	"github.com/realmgate/realmgate/ratelimit"
)

// ErrValidatorNil is returned by New when no validator was supplied.
var ErrValidatorNil = errors.New("a token validator is required")

// Option configures a Gateway.
type Option func(*Gateway) error

// WithValidator sets the token validation pipeline. Required.
func WithValidator(v TokenValidator) Option {
	return func(g *Gateway) error {
		if v == nil {
			return ErrValidatorNil
		}
		g.validator = v
		return nil
	}
}

// WithRateLimiter enables per-client rate limiting. When absent, the gateway
// performs no rate limiting.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(g *Gateway) error {
		if l == nil {
			return errors.New("rate limiter cannot be nil")
		}
		g.limiter = l
		return nil
	}
}

// WithAuditor routes success and failure events through a. When absent, the
// gateway emits no audit events of its own; the validator may still carry one.
func WithAuditor(a *audit.Auditor) Option {
	return func(g *Gateway) error {
		if a == nil {
			return errors.New("auditor cannot be nil")
		}
		g.auditor = a
		return nil
	}
}

// WithResponder replaces the default error responder.
func WithResponder(r *Responder) Option {
	return func(g *Gateway) error {
		if r == nil {
			return errors.New("responder cannot be nil")
		}
		g.responder = r
		return nil
	}
}

// WithLogger sets the gateway's internal logger. Defaults to the standard
// library logger.
func WithLogger(l Logger) Option {
	return func(g *Gateway) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		g.logger = l
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(g *Gateway) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		g.metrics = m
		return nil
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(g *Gateway) error {
		if t == nil {
			return errors.New("tracer cannot be nil")
		}
		g.tracer = t
		return nil
	}
}

// WithTokenExtractor replaces the default Authorization-header extractor.
func WithTokenExtractor(e TokenExtractor) Option {
	return func(g *Gateway) error {
		if e == nil {
			return errors.New("token extractor cannot be nil")
		}
		g.extractor = e
		return nil
	}
}

// WithGatewayClock overrides the time source. Intended for tests.
func WithGatewayClock(now func() time.Time) Option {
	return func(g *Gateway) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		g.now = now
		return nil
	}
}
