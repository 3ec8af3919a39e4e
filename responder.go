package realmgate

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/realmgate/realmgate/autherr"
)

// Correlation id headers, checked in order. The inbound value is reused when
// present so client-side and server-side records can be joined.
var correlationHeaders = []string{"X-Correlation-ID", "X-Request-ID"}

// CorrelationIDHeader is the response header carrying the correlation id.
const CorrelationIDHeader = "X-Correlation-ID"

// ClientError is the body every error response carries. The description comes
// from a fixed per-kind phrase table and never contains internal detail.
type ClientError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	CorrelationID    string `json:"correlation_id"`
	Timestamp        string `json:"timestamp"`
}

// ErrorResponse is a ready-to-write rejection: status, body and headers.
type ErrorResponse struct {
	Status  int
	Body    ClientError
	Headers http.Header
}

// ErrorContext carries request detail into Respond. Extra lands only in the
// internal log entry, never in the client body.
type ErrorContext struct {
	CorrelationID string
	SourceIP      string
	RetryAfter    int
	Extra         map[string]any
}

type kindMapping struct {
	status int
	code   string
	phrase string
}

// The fixed kind -> response table. Phrases are deliberately generic.
var kindMappings = map[autherr.Kind]kindMapping{
	autherr.KindMissingToken:       {http.StatusUnauthorized, "invalid_request", "Authentication required"},
	autherr.KindTokenMalformed:     {http.StatusUnauthorized, "invalid_token", "The access token is malformed"},
	autherr.KindKeyNotFound:        {http.StatusUnauthorized, "invalid_token", "The access token could not be verified"},
	autherr.KindSignatureInvalid:   {http.StatusUnauthorized, "invalid_token", "The access token signature is invalid"},
	autherr.KindIssuerInvalid:      {http.StatusUnauthorized, "invalid_token", "The access token issuer is not trusted"},
	autherr.KindAudienceInvalid:    {http.StatusUnauthorized, "invalid_token", "The access token audience is not accepted"},
	autherr.KindTokenExpired:       {http.StatusUnauthorized, "expired_token", "The access token has expired"},
	autherr.KindClaimsInvalid:      {http.StatusUnauthorized, "invalid_token", "The access token claims are invalid"},
	autherr.KindGeneric:            {http.StatusUnauthorized, "authentication_failed", "Authentication failed"},
	autherr.KindRateLimitExceeded:  {http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, try again later"},
	autherr.KindKeyServiceDown:     {http.StatusServiceUnavailable, "service_unavailable", "Authentication service temporarily unavailable"},
	autherr.KindConfigurationError: {http.StatusInternalServerError, "server_error", "Internal server error"},
}

// Responder maps classified failures to client responses and internal log
// entries sharing one correlation id.
type Responder struct {
	logger Logger
	realm  string
	newID  func() string
	now    func() time.Time
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithChallengeRealm sets the realm attribute of the WWW-Authenticate
// challenge on 401 responses.
func WithChallengeRealm(realm string) ResponderOption {
	return func(r *Responder) { r.realm = realm }
}

// WithResponderClock overrides the time source. Intended for tests.
func WithResponderClock(now func() time.Time) ResponderOption {
	return func(r *Responder) { r.now = now }
}

// NewResponder builds a Responder logging internal detail through logger.
func NewResponder(logger Logger, opts ...ResponderOption) *Responder {
	r := &Responder{
		logger: logger,
		realm:  "realmgate",
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CorrelationID reuses an inbound tracing header when present, else
// generates a fresh id.
func (r *Responder) CorrelationID(headers http.Header) string {
	for _, name := range correlationHeaders {
		if v := headers.Get(name); v != "" {
			return v
		}
	}
	return r.newID()
}

// Respond builds the client response for kind and writes the detailed
// internal log entry. internalMessage may contain anything (exception text,
// hostnames, paths); none of it reaches the returned body.
func (r *Responder) Respond(kind autherr.Kind, internalMessage string, ec ErrorContext) ErrorResponse {
	mapping, ok := kindMappings[kind]
	if !ok {
		mapping = kindMappings[autherr.KindGeneric]
	}

	correlationID := ec.CorrelationID
	if correlationID == "" {
		correlationID = r.newID()
	}

	headers := http.Header{}
	headers.Set(CorrelationIDHeader, correlationID)
	headers.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	headers.Set("Pragma", "no-cache")
	headers.Set("Expires", "0")
	if mapping.status == http.StatusUnauthorized {
		headers.Set("WWW-Authenticate", `Bearer realm="`+r.realm+`", error="`+mapping.code+`"`)
	}
	if mapping.status == http.StatusTooManyRequests && ec.RetryAfter > 0 {
		headers.Set("Retry-After", strconv.Itoa(ec.RetryAfter))
	}

	resp := ErrorResponse{
		Status: mapping.status,
		Body: ClientError{
			Error:            mapping.code,
			ErrorDescription: mapping.phrase,
			CorrelationID:    correlationID,
			Timestamp:        r.now().UTC().Format(time.RFC3339),
		},
		Headers: headers,
	}

	r.logInternal(kind, internalMessage, correlationID, ec, mapping.status)
	return resp
}

// logInternal writes the operator-facing entry carrying the full internal
// message and context. 5xx failures log at error level, the rest at warn.
func (r *Responder) logInternal(kind autherr.Kind, internalMessage, correlationID string, ec ErrorContext, status int) {
	if r.logger == nil {
		return
	}
	args := []any{
		"kind", string(kind),
		"correlation_id", correlationID,
		"source_ip", ec.SourceIP,
		"status", status,
		"internal_message", internalMessage,
	}
	for k, v := range ec.Extra {
		args = append(args, k, v)
	}
	if status >= http.StatusInternalServerError {
		r.logger.Error("authentication error", args...)
		return
	}
	r.logger.Warn("authentication rejected", args...)
}
