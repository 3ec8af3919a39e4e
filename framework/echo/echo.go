// Package echohandler adapts the gateway to echo middleware chains.
package echohandler

import (
	"github.com/labstack/echo/v4"

	"github.com/realmgate/realmgate"
	"github.com/realmgate/realmgate/identity"
)

// DefaultIdentityKey is the echo context key the authenticated identity is
// stored under.
const DefaultIdentityKey = "identity"

type config struct {
	errorHandler func(echo.Context, realmgate.ErrorResponse) error
	identityKey  string
}

// Option configures the echo middleware.
type Option func(*config)

// WithErrorHandler replaces the default rejection writer.
func WithErrorHandler(h func(echo.Context, realmgate.ErrorResponse) error) Option {
	return func(c *config) { c.errorHandler = h }
}

// WithIdentityKey changes the echo context key for the identity.
func WithIdentityKey(key string) Option {
	return func(c *config) { c.identityKey = key }
}

// New returns an echo middleware running the full authentication pipeline.
func New(gw *realmgate.Gateway, opts ...Option) echo.MiddlewareFunc {
	cfg := &config{
		errorHandler: defaultErrorHandler,
		identityKey:  DefaultIdentityKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			result := gw.Authenticate(req.Context(), realmgate.RequestFromHTTP(req))
			if !result.Proceed() {
				return cfg.errorHandler(c, *result.Rejection)
			}

			c.Response().Header().Set(realmgate.CorrelationIDHeader, result.CorrelationID)
			c.Set(cfg.identityKey, result.Identity)
			c.SetRequest(req.WithContext(realmgate.SetIdentity(req.Context(), result.Identity)))
			return next(c)
		}
	}
}

func defaultErrorHandler(c echo.Context, resp realmgate.ErrorResponse) error {
	h := c.Response().Header()
	for name, values := range resp.Headers {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	return c.JSON(resp.Status, resp.Body)
}

// GetIdentity reads the authenticated identity from the echo context.
func GetIdentity(c echo.Context, identityKey string) (*identity.Context, bool) {
	if identityKey == "" {
		identityKey = DefaultIdentityKey
	}
	id, ok := c.Get(identityKey).(*identity.Context)
	return id, ok
}
