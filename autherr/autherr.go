// Package autherr defines the authentication error taxonomy shared by the
// validator, rate limiter, auditor and response mapper. Every failure that can
// surface to a client is classified by a Kind; the Kind drives the HTTP status
// and the generic client-facing phrase, while the wrapped error carries the
// internal detail for operator logs only.
package autherr

import "errors"

// Kind classifies an authentication failure.
type Kind string

const (
	KindMissingToken       Kind = "MISSING_TOKEN"
	KindTokenMalformed     Kind = "TOKEN_MALFORMED"
	KindKeyNotFound        Kind = "KEY_NOT_FOUND"
	KindSignatureInvalid   Kind = "SIGNATURE_INVALID"
	KindIssuerInvalid      Kind = "ISSUER_INVALID"
	KindAudienceInvalid    Kind = "AUDIENCE_INVALID"
	KindTokenExpired       Kind = "TOKEN_EXPIRED"
	KindClaimsInvalid      Kind = "CLAIMS_INVALID"
	KindKeyServiceDown     Kind = "KEY_SERVICE_UNAVAILABLE"
	KindRateLimitExceeded  Kind = "RATE_LIMIT_EXCEEDED"
	KindConfigurationError Kind = "CONFIGURATION_ERROR"
	KindGeneric            Kind = "AUTHENTICATION_ERROR"
)

// ErrAuthentication is the sentinel all classified errors match via errors.Is.
var ErrAuthentication = errors.New("authentication failed")

// Error is a classified authentication error. The Message is internal detail
// and must never be written to a client response.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports equality to ErrAuthentication and to other *Error values of the
// same Kind, so callers can match either the family or a specific kind.
func (e *Error) Is(target error) bool {
	if target == ErrAuthentication {
		return true
	}
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New builds a classified error.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindGeneric for anything
// that is not a classified *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindGeneric
}
