package realmgate

import (
	"context"
	"fmt"
	"time"

	"github.com/realmgate/realmgate/audit"
	"github.com/realmgate/realmgate/autherr"
	"github.com/realmgate/realmgate/identity"
	"github.com/realmgate/realmgate/ratelimit"
	"github.com/realmgate/realmgate/validator"
)

// TokenValidator is the validation pipeline the gateway drives.
// *validator.Validator satisfies it.
type TokenValidator interface {
	Validate(ctx context.Context, token, sourceIP string) (*validator.Claims, error)
}

// Result is the outcome of one authentication attempt: either an identity to
// proceed with, or a rejection ready to be written to the client. Exactly one
// of Identity and Rejection is set.
type Result struct {
	Identity      *identity.Context
	Rejection     *ErrorResponse
	CorrelationID string
}

// Proceed reports whether the request may continue to the protected handler.
func (r Result) Proceed() bool { return r.Rejection == nil }

// Gateway wires the validator, rate limiter, auditor and responder into a
// single per-request entry point. All state lives in the injected components;
// the Gateway itself is immutable after New and safe for concurrent use.
type Gateway struct {
	validator TokenValidator
	limiter   *ratelimit.Limiter
	auditor   *audit.Auditor
	responder *Responder
	extractor TokenExtractor
	logger    Logger
	metrics   Metrics
	tracer    Tracer
	now       func() time.Time
}

// New builds a Gateway. WithValidator is required; everything else has a
// working default (no rate limiting, no auditing, noop metrics and tracing).
func New(opts ...Option) (*Gateway, error) {
	g := &Gateway{
		extractor: AuthHeaderTokenExtractor,
		metrics:   &NoopMetrics{},
		tracer:    &NoopTracer{},
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if g.validator == nil {
		return nil, ErrValidatorNil
	}
	if g.logger == nil {
		g.logger = &DefaultLogger{}
	}
	if g.responder == nil {
		g.responder = NewResponder(g.logger)
	}
	return g, nil
}

// Authenticate runs the full pipeline for one request: rate limit, bearer
// extraction, token validation, identity extraction. It never panics and
// never writes to the transport; the caller decides how to apply the Result.
func (g *Gateway) Authenticate(ctx context.Context, req RequestMetadata) Result {
	ctx, span := g.tracer.StartSpan(ctx, "realmgate.Authenticate")
	defer span.End()

	start := g.now()
	clientKey := ratelimit.ClientKey(req.RemoteAddr, req.Headers)
	correlationID := g.responder.CorrelationID(req.Headers)
	span.SetTag("client.key", clientKey)
	span.SetTag("correlation.id", correlationID)

	if g.limiter != nil {
		if res := g.limiter.Check(clientKey); !res.Allowed {
			return g.rejectRateLimited(req, clientKey, correlationID, start, res)
		}
	}

	token, err := g.extractor(req)
	if err != nil {
		return g.reject(req, clientKey, correlationID, start, autherr.KindMissingToken,
			fmt.Sprintf("token extraction failed: %v", err))
	}
	if token == "" {
		return g.reject(req, clientKey, correlationID, start, autherr.KindMissingToken,
			"no bearer token in request")
	}

	claims, err := g.validator.Validate(ctx, token, clientKey)
	if err != nil {
		// The validator has already written its audit event; the gateway adds
		// the failure to the pattern detector and maps the response.
		kind := autherr.KindOf(err)
		return g.reject(req, clientKey, correlationID, start, kind, err.Error())
	}

	id := identity.Extract(claims)
	span.SetTag("identity.subject", id.UserID)

	if g.auditor != nil {
		g.auditor.LogSuccess(audit.SuccessEvent{
			CorrelationID: correlationID,
			Subject:       id.UserID,
			Username:      id.Username,
			SourceIP:      clientKey,
			Endpoint:      req.Path,
			Method:        req.Method,
			ServiceAcct:   id.IsServiceAccount,
		})
	}

	g.observeOutcome("success", start)

	return Result{Identity: &id, CorrelationID: correlationID}
}

// observeOutcome records the counter and duration for one finished attempt.
// Every pipeline exit goes through here so the histogram covers all outcomes.
func (g *Gateway) observeOutcome(outcome string, start time.Time) {
	tags := map[string]string{"outcome": outcome}
	g.metrics.IncCounter(MetricAuthTotal, tags)
	g.metrics.ObserveHistogram(MetricAuthDuration, g.now().Sub(start).Seconds(), tags)
}

func (g *Gateway) rejectRateLimited(req RequestMetadata, clientKey, correlationID string, start time.Time, res ratelimit.Result) Result {
	if g.auditor != nil {
		g.auditor.LogAlert(audit.SecurityAlert{
			Type:     audit.AlertRateLimitExceeded,
			Severity: audit.SeverityMedium,
			SourceIP: clientKey,
			Details: map[string]any{
				"window":     g.limiter.Window().String(),
				"limit":      g.limiter.Limit(),
				"endpoint":   req.Path,
				"method":     req.Method,
				"user_agent": req.UserAgent(),
			},
		})
	}

	resp := g.responder.Respond(autherr.KindRateLimitExceeded,
		fmt.Sprintf("client %s exceeded %d requests per %s", clientKey, g.limiter.Limit(), g.limiter.Window()),
		ErrorContext{
			CorrelationID: correlationID,
			SourceIP:      clientKey,
			RetryAfter:    res.RetryAfter,
		})

	g.metrics.IncCounter(MetricRateLimited, map[string]string{})
	g.observeOutcome("rate_limited", start)
	return Result{Rejection: &resp, CorrelationID: correlationID}
}

func (g *Gateway) reject(req RequestMetadata, clientKey, correlationID string, start time.Time, kind autherr.Kind, internalMessage string) Result {
	if g.auditor != nil {
		g.auditor.RecordFailure(clientKey, kind, req.Path, req.Method, req.UserAgent())
	}

	resp := g.responder.Respond(kind, internalMessage, ErrorContext{
		CorrelationID: correlationID,
		SourceIP:      clientKey,
		Extra: map[string]any{
			"endpoint": req.Path,
			"method":   req.Method,
		},
	})

	g.observeOutcome("failure", start)
	return Result{Rejection: &resp, CorrelationID: correlationID}
}
