package realmgate

import (
	"errors"
	"net/http"
	"strings"
)

// TokenExtractor pulls a bearer token out of request metadata. An error means
// a token was supplied but malformed; a simply absent token returns an empty
// string with no error.
type TokenExtractor func(m RequestMetadata) (string, error)

// ErrMalformedAuthHeader is returned when an Authorization header exists but
// is not a well-formed bearer scheme.
var ErrMalformedAuthHeader = errors.New("authorization header format must be Bearer {token}")

// AuthHeaderTokenExtractor reads the standard Authorization bearer header.
// This is the default extractor.
func AuthHeaderTokenExtractor(m RequestMetadata) (string, error) {
	authHeader := m.Headers.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMalformedAuthHeader
	}
	return parts[1], nil
}

// HeaderTokenExtractor reads the raw value of a custom header. Useful for
// gateways fronting services that pass tokens out of band.
func HeaderTokenExtractor(name string) TokenExtractor {
	return func(m RequestMetadata) (string, error) {
		return strings.TrimSpace(m.Headers.Get(name)), nil
	}
}

// MultiTokenExtractor tries extractors in order and takes the first
// non-empty token. An extractor error stops the chain immediately.
func MultiTokenExtractor(extractors ...TokenExtractor) TokenExtractor {
	return func(m RequestMetadata) (string, error) {
		for _, ex := range extractors {
			token, err := ex(m)
			if err != nil {
				return "", err
			}
			if token != "" {
				return token, nil
			}
		}
		return "", nil
	}
}

// RequestMetadata is the transport-neutral view of an inbound request. The
// HTTP middleware and the framework adapters construct it; the gRPC
// interceptor synthesizes one from call metadata.
type RequestMetadata struct {
	Method     string
	Path       string
	RemoteAddr string
	Headers    http.Header
}

// RequestFromHTTP captures the metadata the gateway needs from r.
func RequestFromHTTP(r *http.Request) RequestMetadata {
	return RequestMetadata{
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		Headers:    r.Header,
	}
}

// UserAgent returns the request's User-Agent header.
func (m RequestMetadata) UserAgent() string {
	return m.Headers.Get("User-Agent")
}
