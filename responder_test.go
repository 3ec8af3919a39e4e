package realmgate

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmgate/realmgate/autherr"
)

type recordedLog struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	logs []recordedLog
}

func (l *recordingLogger) Debug(msg string, args ...any) {
	l.logs = append(l.logs, recordedLog{"debug", msg, args})
}
func (l *recordingLogger) Info(msg string, args ...any) {
	l.logs = append(l.logs, recordedLog{"info", msg, args})
}
func (l *recordingLogger) Warn(msg string, args ...any) {
	l.logs = append(l.logs, recordedLog{"warn", msg, args})
}
func (l *recordingLogger) Error(msg string, args ...any) {
	l.logs = append(l.logs, recordedLog{"error", msg, args})
}

func TestRespondStatusMapping(t *testing.T) {
	testCases := []struct {
		kind       autherr.Kind
		wantStatus int
		wantCode   string
	}{
		{autherr.KindMissingToken, http.StatusUnauthorized, "invalid_request"},
		{autherr.KindTokenMalformed, http.StatusUnauthorized, "invalid_token"},
		{autherr.KindKeyNotFound, http.StatusUnauthorized, "invalid_token"},
		{autherr.KindSignatureInvalid, http.StatusUnauthorized, "invalid_token"},
		{autherr.KindIssuerInvalid, http.StatusUnauthorized, "invalid_token"},
		{autherr.KindAudienceInvalid, http.StatusUnauthorized, "invalid_token"},
		{autherr.KindTokenExpired, http.StatusUnauthorized, "expired_token"},
		{autherr.KindClaimsInvalid, http.StatusUnauthorized, "invalid_token"},
		{autherr.KindGeneric, http.StatusUnauthorized, "authentication_failed"},
		{autherr.KindRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{autherr.KindKeyServiceDown, http.StatusServiceUnavailable, "service_unavailable"},
		{autherr.KindConfigurationError, http.StatusInternalServerError, "server_error"},
	}

	responder := NewResponder(&recordingLogger{})
	for _, testCase := range testCases {
		t.Run(string(testCase.kind), func(t *testing.T) {
			resp := responder.Respond(testCase.kind, "internal detail", ErrorContext{})

			assert.Equal(t, testCase.wantStatus, resp.Status)
			assert.Equal(t, testCase.wantCode, resp.Body.Error)
			assert.NotEmpty(t, resp.Body.ErrorDescription)
			assert.NotEmpty(t, resp.Body.CorrelationID)
		})
	}
}

func TestRespondUnknownKindFallsBackToGeneric(t *testing.T) {
	responder := NewResponder(&recordingLogger{})

	resp := responder.Respond(autherr.Kind("SOMETHING_NEW"), "detail", ErrorContext{})

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "authentication_failed", resp.Body.Error)
}

func TestRespondHeaders(t *testing.T) {
	responder := NewResponder(&recordingLogger{}, WithChallengeRealm("orders"))

	t.Run("401 carries bearer challenge and cache suppression", func(t *testing.T) {
		resp := responder.Respond(autherr.KindTokenExpired, "detail", ErrorContext{CorrelationID: "corr-1"})

		assert.Equal(t, "corr-1", resp.Headers.Get(CorrelationIDHeader))
		assert.Equal(t, "no-store, no-cache, must-revalidate", resp.Headers.Get("Cache-Control"))
		assert.Equal(t, "no-cache", resp.Headers.Get("Pragma"))
		assert.Equal(t, "0", resp.Headers.Get("Expires"))
		assert.Equal(t, `Bearer realm="orders", error="expired_token"`, resp.Headers.Get("WWW-Authenticate"))
	})

	t.Run("429 carries retry-after", func(t *testing.T) {
		resp := responder.Respond(autherr.KindRateLimitExceeded, "detail", ErrorContext{RetryAfter: 42})

		assert.Equal(t, "42", resp.Headers.Get("Retry-After"))
		assert.Empty(t, resp.Headers.Get("WWW-Authenticate"))
	})

	t.Run("503 has no challenge", func(t *testing.T) {
		resp := responder.Respond(autherr.KindKeyServiceDown, "detail", ErrorContext{})
		assert.Empty(t, resp.Headers.Get("WWW-Authenticate"))
	})
}

func TestRespondNeverLeaksInternalDetail(t *testing.T) {
	responder := NewResponder(&recordingLogger{})
	rng := rand.New(rand.NewSource(1))

	kinds := []autherr.Kind{
		autherr.KindMissingToken, autherr.KindTokenMalformed, autherr.KindKeyNotFound,
		autherr.KindSignatureInvalid, autherr.KindIssuerInvalid, autherr.KindAudienceInvalid,
		autherr.KindTokenExpired, autherr.KindClaimsInvalid, autherr.KindGeneric,
		autherr.KindRateLimitExceeded, autherr.KindKeyServiceDown, autherr.KindConfigurationError,
	}
	secrets := []string{
		"dial tcp 10.1.2.3:5432: connection refused",
		"/etc/realmgate/keys/private.pem",
		"pq: password authentication failed for user \"gateway\"",
		"rsa.VerifyPKCS1v15: crypto/rsa: verification error",
		"goroutine 42 [running]: main.validate(0xc0000b2000)",
	}

	for i := 0; i < 200; i++ {
		kind := kinds[rng.Intn(len(kinds))]
		secret := fmt.Sprintf("%s #%d", secrets[rng.Intn(len(secrets))], rng.Int63())

		resp := responder.Respond(kind, secret, ErrorContext{
			SourceIP: "10.0.0.1",
			Extra:    map[string]any{"internal_hostname": "idp-07.internal"},
		})

		body, err := json.Marshal(resp.Body)
		require.NoError(t, err)
		assert.NotContains(t, string(body), secret, "internal message leaked for kind %s", kind)
		assert.NotContains(t, string(body), "idp-07.internal")

		for name, values := range resp.Headers {
			for _, v := range values {
				assert.NotContains(t, v, secret, "internal message leaked into header %s", name)
			}
		}
	}
}

func TestRespondLogsInternalDetail(t *testing.T) {
	logger := &recordingLogger{}
	responder := NewResponder(logger)

	resp := responder.Respond(autherr.KindSignatureInvalid, "rsa verification failed for kid key-1", ErrorContext{
		CorrelationID: "corr-1",
		SourceIP:      "10.0.0.1",
	})

	require.Len(t, logger.logs, 1)
	entry := logger.logs[0]
	assert.Equal(t, "warn", entry.level)
	assert.Contains(t, entry.args, "rsa verification failed for kid key-1")
	assert.Contains(t, entry.args, "corr-1")
	assert.Equal(t, "corr-1", resp.Body.CorrelationID, "log entry and response share the correlation id")
}

func TestRespondServerErrorsLogAtErrorLevel(t *testing.T) {
	logger := &recordingLogger{}
	responder := NewResponder(logger)

	responder.Respond(autherr.KindConfigurationError, "issuer unset", ErrorContext{})

	require.Len(t, logger.logs, 1)
	assert.Equal(t, "error", logger.logs[0].level)
}

func TestRespondTimestampFormat(t *testing.T) {
	fixed := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	responder := NewResponder(&recordingLogger{}, WithResponderClock(func() time.Time { return fixed }))

	resp := responder.Respond(autherr.KindMissingToken, "detail", ErrorContext{})
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.Body.Timestamp)
}

func TestCorrelationIDReusesInboundHeaders(t *testing.T) {
	responder := NewResponder(&recordingLogger{})

	headers := http.Header{}
	headers.Set("X-Correlation-ID", "corr-inbound")
	assert.Equal(t, "corr-inbound", responder.CorrelationID(headers))

	headers = http.Header{}
	headers.Set("X-Request-ID", "req-inbound")
	assert.Equal(t, "req-inbound", responder.CorrelationID(headers))

	fresh := responder.CorrelationID(http.Header{})
	assert.NotEmpty(t, fresh)
	assert.NotEqual(t, responder.CorrelationID(http.Header{}), fresh, "generated ids are unique")
}
