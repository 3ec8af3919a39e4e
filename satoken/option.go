package satoken

import (
	"fmt"
	"net/http"
	"time"
)

// Option configures a Manager.
type Option func(*Manager) error

// WithRealm registers a realm and its token endpoint. Credentials naming an
// unregistered realm are rejected before any network call.
func WithRealm(name, tokenEndpoint string) Option {
	return func(m *Manager) error {
		if name == "" {
			return fmt.Errorf("realm name cannot be empty")
		}
		if tokenEndpoint == "" {
			return fmt.Errorf("token endpoint cannot be empty")
		}
		m.realms[name] = tokenEndpoint
		return nil
	}
}

// WithHTTPClient replaces the HTTP client used for grants.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) error {
		if c == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		m.httpClient = c
		return nil
	}
}

// WithExpiryBuffer sets how long before nominal expiry a token is treated as
// expired. Defaults to 30 seconds.
func WithExpiryBuffer(d time.Duration) Option {
	return func(m *Manager) error {
		if d < 0 {
			return fmt.Errorf("expiry buffer cannot be negative")
		}
		m.expiryBuffer = d
		return nil
	}
}

// WithVerifier attaches the optional service-account check run on every
// acquired or refreshed token.
func WithVerifier(v Verifier) Option {
	return func(m *Manager) error {
		if v == nil {
			return fmt.Errorf("verifier cannot be nil")
		}
		m.verifier = v
		return nil
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		m.now = now
		return nil
	}
}
