// Package ginhandler adapts the gateway to gin handler chains.
package ginhandler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/realmgate/realmgate"
	"github.com/realmgate/realmgate/identity"
)

// DefaultIdentityKey is the gin context key the authenticated identity is
// stored under.
const DefaultIdentityKey = "identity"

var (
	ErrMissingIdentity = errors.New("no authenticated identity in context")
	ErrInvalidIdentity = errors.New("invalid identity type in context")
)

type config struct {
	errorHandler func(*gin.Context, realmgate.ErrorResponse)
	identityKey  string
}

// Option configures the gin middleware.
type Option func(*config)

// WithErrorHandler replaces the default rejection writer.
func WithErrorHandler(h func(*gin.Context, realmgate.ErrorResponse)) Option {
	return func(c *config) { c.errorHandler = h }
}

// WithIdentityKey changes the gin context key for the identity.
func WithIdentityKey(key string) Option {
	return func(c *config) { c.identityKey = key }
}

// New returns a gin middleware running the full authentication pipeline.
// Rejected requests are aborted with the responder's status, headers and
// body; on success the identity is available both through GetIdentity and
// through realmgate.IdentityFrom on the request context.
func New(gw *realmgate.Gateway, opts ...Option) gin.HandlerFunc {
	cfg := &config{
		errorHandler: defaultErrorHandler,
		identityKey:  DefaultIdentityKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		result := gw.Authenticate(c.Request.Context(), realmgate.RequestFromHTTP(c.Request))
		if !result.Proceed() {
			cfg.errorHandler(c, *result.Rejection)
			return
		}

		c.Header(realmgate.CorrelationIDHeader, result.CorrelationID)
		c.Set(cfg.identityKey, result.Identity)
		c.Request = c.Request.WithContext(realmgate.SetIdentity(c.Request.Context(), result.Identity))
		c.Next()
	}
}

func defaultErrorHandler(c *gin.Context, resp realmgate.ErrorResponse) {
	for name, values := range resp.Headers {
		for _, v := range values {
			c.Header(name, v)
		}
	}
	c.AbortWithStatusJSON(resp.Status, resp.Body)
}

// GetIdentity reads the authenticated identity from the gin context.
func GetIdentity(c *gin.Context, identityKey string) (*identity.Context, error) {
	if identityKey == "" {
		identityKey = DefaultIdentityKey
	}
	v, exists := c.Get(identityKey)
	if !exists {
		return nil, ErrMissingIdentity
	}

	id, ok := v.(*identity.Context)
	if !ok {
		return nil, ErrInvalidIdentity
	}
	return id, nil
}
