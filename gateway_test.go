package realmgate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmgate/realmgate/audit"
	"github.com/realmgate/realmgate/autherr"
	"github.com/realmgate/realmgate/ratelimit"
	"github.com/realmgate/realmgate/validator"
)

// fakeValidator returns canned claims or a canned error.
type fakeValidator struct {
	claims   *validator.Claims
	err      error
	gotToken string
}

func (f *fakeValidator) Validate(ctx context.Context, token, sourceIP string) (*validator.Claims, error) {
	f.gotToken = token
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

func validClaims() *validator.Claims {
	return &validator.Claims{
		Subject:           "user-1",
		PreferredUsername: "jdoe",
		Email:             "jdoe@example.com",
		Issuer:            "https://idp.example.com/realms/acme",
		ExpiresAt:         time.Now().Add(time.Hour).Unix(),
	}
}

func authedRequest(token string) RequestMetadata {
	headers := http.Header{}
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}
	headers.Set("User-Agent", "Mozilla/5.0")
	return RequestMetadata{
		Method:     http.MethodGet,
		Path:       "/api/orders",
		RemoteAddr: "192.168.1.100:52341",
		Headers:    headers,
	}
}

func newTestGateway(t *testing.T, v TokenValidator, opts ...Option) *Gateway {
	t.Helper()

	allOpts := append([]Option{
		WithValidator(v),
		WithLogger(&recordingLogger{}),
	}, opts...)
	gw, err := New(allOpts...)
	require.NoError(t, err)
	return gw
}

func TestAuthenticateSuccess(t *testing.T) {
	fv := &fakeValidator{claims: validClaims()}
	gw := newTestGateway(t, fv)

	result := gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))

	require.True(t, result.Proceed())
	require.NotNil(t, result.Identity)
	assert.Nil(t, result.Rejection)
	assert.Equal(t, "abc.def.ghi", fv.gotToken)
	assert.Equal(t, "user-1", result.Identity.UserID)
	assert.Equal(t, "jdoe", result.Identity.Username)
	assert.Equal(t, "acme", result.Identity.Realm)
	assert.NotEmpty(t, result.CorrelationID)
}

func TestAuthenticateMissingToken(t *testing.T) {
	gw := newTestGateway(t, &fakeValidator{claims: validClaims()})

	result := gw.Authenticate(context.Background(), authedRequest(""))

	require.False(t, result.Proceed())
	assert.Equal(t, http.StatusUnauthorized, result.Rejection.Status)
	assert.Equal(t, "invalid_request", result.Rejection.Body.Error)
}

func TestAuthenticateMalformedAuthHeader(t *testing.T) {
	gw := newTestGateway(t, &fakeValidator{claims: validClaims()})

	req := authedRequest("")
	req.Headers.Set("Authorization", "Basic dXNlcjpwYXNz")
	result := gw.Authenticate(context.Background(), req)

	require.False(t, result.Proceed())
	assert.Equal(t, http.StatusUnauthorized, result.Rejection.Status)
	assert.Equal(t, "invalid_request", result.Rejection.Body.Error)
}

func TestAuthenticateValidationFailures(t *testing.T) {
	testCases := []struct {
		kind       autherr.Kind
		wantStatus int
		wantCode   string
	}{
		{autherr.KindTokenExpired, http.StatusUnauthorized, "expired_token"},
		{autherr.KindSignatureInvalid, http.StatusUnauthorized, "invalid_token"},
		{autherr.KindKeyServiceDown, http.StatusServiceUnavailable, "service_unavailable"},
	}

	for _, testCase := range testCases {
		t.Run(string(testCase.kind), func(t *testing.T) {
			fv := &fakeValidator{err: autherr.New(testCase.kind, "validation failed", nil)}
			gw := newTestGateway(t, fv)

			result := gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))

			require.False(t, result.Proceed())
			assert.Equal(t, testCase.wantStatus, result.Rejection.Status)
			assert.Equal(t, testCase.wantCode, result.Rejection.Body.Error)
		})
	}
}

func TestAuthenticateFeedsFailureDetector(t *testing.T) {
	auditor := audit.New(&recordingLogger{})
	fv := &fakeValidator{err: autherr.New(autherr.KindSignatureInvalid, "bad signature", nil)}
	gw := newTestGateway(t, fv, WithAuditor(auditor))

	gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))
	gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))

	assert.Equal(t, 2, auditor.FailureCount("192.168.1.100"))
}

func TestAuthenticateRateLimited(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.WithLimit(1), ratelimit.WithWindow(time.Minute))
	require.NoError(t, err)

	logger := &recordingLogger{}
	auditor := audit.New(logger)
	gw := newTestGateway(t, &fakeValidator{claims: validClaims()},
		WithRateLimiter(limiter),
		WithAuditor(auditor),
	)

	first := gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))
	require.True(t, first.Proceed())

	second := gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))
	require.False(t, second.Proceed())
	assert.Equal(t, http.StatusTooManyRequests, second.Rejection.Status)
	assert.Equal(t, "rate_limit_exceeded", second.Rejection.Body.Error)
	assert.NotEmpty(t, second.Rejection.Headers.Get("Retry-After"))

	var alerted bool
	for _, entry := range logger.logs {
		if entry.msg == "security alert" {
			alerted = true
		}
	}
	assert.True(t, alerted, "rate limiting raises a security alert")
}

func TestAuthenticateRateLimitIsPerClient(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.WithLimit(1))
	require.NoError(t, err)
	gw := newTestGateway(t, &fakeValidator{claims: validClaims()}, WithRateLimiter(limiter))

	first := authedRequest("abc.def.ghi")
	require.True(t, gw.Authenticate(context.Background(), first).Proceed())
	require.False(t, gw.Authenticate(context.Background(), first).Proceed())

	other := authedRequest("abc.def.ghi")
	other.RemoteAddr = "10.0.0.7:1234"
	assert.True(t, gw.Authenticate(context.Background(), other).Proceed())
}

func TestAuthenticateReusesInboundCorrelationID(t *testing.T) {
	gw := newTestGateway(t, &fakeValidator{claims: validClaims()})

	req := authedRequest("abc.def.ghi")
	req.Headers.Set("X-Correlation-ID", "corr-inbound")

	result := gw.Authenticate(context.Background(), req)
	assert.Equal(t, "corr-inbound", result.CorrelationID)
}

func TestAuthenticateLogsSuccessAudit(t *testing.T) {
	logger := &recordingLogger{}
	auditor := audit.New(logger)
	gw := newTestGateway(t, &fakeValidator{claims: validClaims()}, WithAuditor(auditor))

	result := gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))
	require.True(t, result.Proceed())

	require.Len(t, logger.logs, 1)
	assert.Equal(t, "authentication succeeded", logger.logs[0].msg)
}

type captureMetrics struct {
	counters     map[string]map[string]string
	observations map[string][]map[string]string
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{
		counters:     make(map[string]map[string]string),
		observations: make(map[string][]map[string]string),
	}
}

func (m *captureMetrics) IncCounter(name string, tags map[string]string) {
	m.counters[name] = tags
}

func (m *captureMetrics) ObserveHistogram(name string, value float64, tags map[string]string) {
	m.observations[name] = append(m.observations[name], tags)
}

func (m *captureMetrics) durationOutcomes() []string {
	var out []string
	for _, tags := range m.observations[MetricAuthDuration] {
		out = append(out, tags["outcome"])
	}
	return out
}

func TestAuthenticateObservesDurationForEveryOutcome(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		metrics := newCaptureMetrics()
		gw := newTestGateway(t, &fakeValidator{claims: validClaims()}, WithMetrics(metrics))

		gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))

		assert.Equal(t, []string{"success"}, metrics.durationOutcomes())
	})

	t.Run("failure", func(t *testing.T) {
		metrics := newCaptureMetrics()
		fv := &fakeValidator{err: autherr.New(autherr.KindSignatureInvalid, "bad signature", nil)}
		gw := newTestGateway(t, fv, WithMetrics(metrics))

		gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))

		assert.Equal(t, []string{"failure"}, metrics.durationOutcomes())
	})

	t.Run("rate limited", func(t *testing.T) {
		limiter, err := ratelimit.New(ratelimit.WithLimit(1))
		require.NoError(t, err)
		metrics := newCaptureMetrics()
		gw := newTestGateway(t, &fakeValidator{claims: validClaims()},
			WithRateLimiter(limiter), WithMetrics(metrics))

		gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))
		gw.Authenticate(context.Background(), authedRequest("abc.def.ghi"))

		assert.Equal(t, []string{"success", "rate_limited"}, metrics.durationOutcomes())
	})
}

func TestNewRequiresValidator(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrValidatorNil)
}

func TestCheckAuthMiddleware(t *testing.T) {
	t.Run("valid token reaches the handler with identity", func(t *testing.T) {
		gw := newTestGateway(t, &fakeValidator{claims: validClaims()})

		var seen bool
		handler := gw.CheckAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = true
			id := IdentityFrom(r.Context())
			require.NotNil(t, id)
			assert.Equal(t, "user-1", id.UserID)
			assert.True(t, HasIdentity(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))

		r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		r.Header.Set("Authorization", "Bearer abc.def.ghi")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.True(t, seen)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(CorrelationIDHeader))
	})

	t.Run("missing token is rejected with JSON body", func(t *testing.T) {
		gw := newTestGateway(t, &fakeValidator{claims: validClaims()})

		handler := gw.CheckAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

		var body ClientError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "invalid_request", body.Error)
		assert.NotEmpty(t, body.CorrelationID)
	})

	t.Run("expired token maps to expired_token", func(t *testing.T) {
		fv := &fakeValidator{err: autherr.New(autherr.KindTokenExpired, "token expired", nil)}
		gw := newTestGateway(t, fv)

		handler := gw.CheckAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		r.Header.Set("Authorization", "Bearer abc.def.ghi")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var body ClientError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "expired_token", body.Error)
	})
}

func TestIdentityFromWithoutIdentity(t *testing.T) {
	assert.Nil(t, IdentityFrom(context.Background()))
	assert.False(t, HasIdentity(context.Background()))
}
