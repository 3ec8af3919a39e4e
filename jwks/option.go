package jwks

import (
	"fmt"
	"net/http"
	"time"
)

// Option configures a KeySet.
type Option func(*KeySet) error

// WithJWKSURI sets the JWKS endpoint directly, skipping OIDC discovery.
func WithJWKSURI(uri string) Option {
	return func(ks *KeySet) error {
		if uri == "" {
			return fmt.Errorf("JWKS URI cannot be empty")
		}
		ks.jwksURI = uri
		return nil
	}
}

// WithHTTPClient replaces the HTTP client used for fetches. Timeouts on the
// outbound call are the caller's responsibility via this client.
func WithHTTPClient(c *http.Client) Option {
	return func(ks *KeySet) error {
		if c == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		ks.httpClient = c
		return nil
	}
}

// WithCacheTTL sets how long a fetched snapshot is served without a new
// network call. Defaults to 15 minutes.
func WithCacheTTL(ttl time.Duration) Option {
	return func(ks *KeySet) error {
		if ttl <= 0 {
			return fmt.Errorf("cache TTL must be positive")
		}
		ks.cacheTTL = ttl
		return nil
	}
}
