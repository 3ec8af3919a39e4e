package validator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Structural failure reasons. Each malformed-token family gets its own error
// so audit entries can distinguish probing patterns.
var (
	ErrEmptyToken       = errors.New("token is empty")
	ErrSegmentCount     = errors.New("token does not have exactly three segments")
	ErrSegmentEncoding  = errors.New("token segment is not valid base64url")
	ErrHeaderNotJSON    = errors.New("token header is not a JSON object")
	ErrHeaderFields     = errors.New("token header is missing alg or typ")
	ErrHeaderType       = errors.New("token typ is not JWT")
	ErrPayloadNotJSON   = errors.New("token payload is not a JSON object")
	ErrPayloadClaims    = errors.New("token payload is missing sub, iss or exp")
	ErrTokenTooLarge    = errors.New("token exceeds maximum size")
)

// maxTokenBytes bounds the token before any decoding happens. Legitimate
// access tokens are a few KB.
const maxTokenBytes = 64 * 1024

// Header is the decoded JOSE header of a structurally valid token.
type Header struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
	KeyID     string `json:"kid"`
}

// Structure is the outcome of a successful structural check: the decoded
// header plus the raw payload JSON. The signature is untouched; structural
// checking never does cryptographic work.
type Structure struct {
	Header  Header
	Payload []byte
}

// minimalPayload is used only to assert the presence of the required claims.
type minimalPayload struct {
	Subject *string          `json:"sub"`
	Issuer  *string          `json:"iss"`
	Expiry  *json.RawMessage `json:"exp"`
}

// CheckStructure runs the syntactic and semantic pre-checks on a compact JWT.
// It must run, and must reject, before any signature verification is
// attempted: that ordering stops malformed input from ever reaching the
// crypto layer. The checks run in a fixed order and each failure maps to a
// distinct reason.
func CheckStructure(token string) (*Structure, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	if len(token) > maxTokenBytes {
		return nil, ErrTokenTooLarge
	}

	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return nil, ErrSegmentCount
	}
	for _, seg := range segments {
		if seg == "" {
			return nil, ErrSegmentCount
		}
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header: %s", ErrSegmentEncoding, err)
	}
	payloadBytes, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %s", ErrSegmentEncoding, err)
	}
	if _, err := base64.RawURLEncoding.DecodeString(segments[2]); err != nil {
		return nil, fmt.Errorf("%w: signature: %s", ErrSegmentEncoding, err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHeaderNotJSON, err)
	}
	if header.Algorithm == "" || header.Type == "" {
		return nil, ErrHeaderFields
	}
	if !strings.EqualFold(header.Type, "JWT") {
		return nil, ErrHeaderType
	}

	var payload minimalPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPayloadNotJSON, err)
	}
	if payload.Subject == nil || payload.Issuer == nil || payload.Expiry == nil {
		return nil, ErrPayloadClaims
	}

	return &Structure{Header: header, Payload: payloadBytes}, nil
}
