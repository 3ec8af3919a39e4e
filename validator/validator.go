// Package validator verifies bearer tokens issued by the identity provider.
//
// Validation is a fixed pipeline: structural pre-checks, signing-key
// resolution through the jwks cache, signature verification against an
// explicit algorithm allow-list, then standard-claims verification. The
// token's own header never chooses the algorithm; a token declaring an
// algorithm outside the allow-list is rejected before any verification runs.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"

	"github.com/realmgate/realmgate/audit"
	"github.com/realmgate/realmgate/autherr"
	"github.com/realmgate/realmgate/jwks"
)

// Accepted signature algorithm names.
const (
	RS256 = "RS256"
	RS384 = "RS384"
	RS512 = "RS512"
	ES256 = "ES256"
	ES384 = "ES384"
	ES512 = "ES512"
	PS256 = "PS256"
	PS384 = "PS384"
	PS512 = "PS512"
)

func defaultAllowedAlgorithms() map[string]bool {
	return map[string]bool{
		RS256: true,
		RS384: true,
		RS512: true,
		ES256: true,
		ES384: true,
		ES512: true,
	}
}

// KeyProvider resolves signing keys by id. *jwks.KeySet satisfies it.
type KeyProvider interface {
	Key(keyID string) (jwks.SigningKey, bool)
	ForceRefresh(ctx context.Context) (*jwks.Snapshot, error)
}

// Validator orchestrates the token validation pipeline. Safe for concurrent
// use; all fields are set at construction and never mutated.
type Validator struct {
	keys           KeyProvider
	issuer         string
	audience       string
	clockTolerance time.Duration
	allowedAlgs    map[string]bool
	recorder       audit.Recorder
	now            func() time.Time
}

// New builds a Validator. keys and issuer are required.
func New(keys KeyProvider, issuer string, opts ...Option) (*Validator, error) {
	if keys == nil {
		return nil, fmt.Errorf("key provider is required but was nil")
	}
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required but was empty")
	}

	v := &Validator{
		keys:           keys,
		issuer:         issuer,
		allowedAlgs:    defaultAllowedAlgorithms(),
		clockTolerance: 30 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return v, nil
}

// Validate checks token and returns its verified claims. Every failure path
// writes exactly one audit event before returning a classified error.
func (v *Validator) Validate(ctx context.Context, token, sourceIP string) (*Claims, error) {
	structure, err := CheckStructure(token)
	if err != nil {
		v.alert(audit.SecurityAlert{
			Type:     audit.AlertInvalidTokenStructure,
			Severity: audit.SeverityMedium,
			SourceIP: sourceIP,
			Details:  map[string]any{"reason": err.Error()},
		})
		return nil, autherr.New(autherr.KindTokenMalformed, "token failed structural validation", err)
	}

	key, err := v.resolveKey(ctx, structure.Header.KeyID, sourceIP)
	if err != nil {
		return nil, err
	}

	alg := structure.Header.Algorithm
	if !v.allowedAlgs[alg] {
		// Covers alg "none" and anything else outside the allow-list.
		return nil, v.fail(autherr.KindSignatureInvalid,
			fmt.Sprintf("token algorithm %q is not in the allow-list", alg), nil, sourceIP)
	}
	if key.Algorithm != "" && key.Algorithm != alg {
		return nil, v.fail(autherr.KindSignatureInvalid,
			fmt.Sprintf("token algorithm %q does not match key algorithm %q", alg, key.Algorithm), nil, sourceIP)
	}

	payload, err := jws.Verify([]byte(token), jws.WithKey(jwa.SignatureAlgorithm(alg), key.Material))
	if err != nil {
		return nil, v.fail(autherr.KindSignatureInvalid, "signature verification failed", err, sourceIP)
	}

	claims, err := v.verifyClaims(payload, sourceIP)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// resolveKey looks the key id up in the cache, refetching once on a miss to
// tolerate key rotation.
func (v *Validator) resolveKey(ctx context.Context, keyID, sourceIP string) (jwks.SigningKey, error) {
	if keyID == "" {
		return jwks.SigningKey{}, v.fail(autherr.KindKeyNotFound, "token header has no key id", nil, sourceIP)
	}

	if key, ok := v.keys.Key(keyID); ok {
		return key, nil
	}

	snap, err := v.keys.ForceRefresh(ctx)
	if err != nil {
		v.logFailure(autherr.KindKeyServiceDown, "signing keys unavailable", sourceIP)
		return jwks.SigningKey{}, autherr.New(autherr.KindKeyServiceDown, "could not refresh signing keys", err)
	}
	if key, ok := snap.Key(keyID); ok {
		return key, nil
	}

	return jwks.SigningKey{}, v.fail(autherr.KindKeyNotFound,
		fmt.Sprintf("no signing key with id %q", keyID), nil, sourceIP)
}

// verifyClaims parses the verified payload and checks issuer, audience and
// expiry against the configured expectations.
func (v *Validator) verifyClaims(payload []byte, sourceIP string) (*Claims, error) {
	claims, err := parseClaims(payload)
	if err != nil {
		return nil, v.fail(autherr.KindClaimsInvalid, "could not parse token claims", err, sourceIP)
	}

	if claims.Issuer != v.issuer {
		return nil, v.fail(autherr.KindIssuerInvalid,
			fmt.Sprintf("token issuer %q does not match configured issuer", claims.Issuer), nil, sourceIP)
	}

	if v.audience != "" && !claims.Audience.Contains(v.audience) {
		return nil, v.fail(autherr.KindAudienceInvalid, "token audience does not include the configured audience", nil, sourceIP)
	}

	if !claims.Expiry().After(v.now().Add(-v.clockTolerance)) {
		if v.recorder != nil {
			v.recorder.LogExpiry(audit.ExpiryEvent{
				Subject:   claims.Subject,
				SourceIP:  sourceIP,
				ExpiredAt: claims.Expiry(),
			})
		}
		return nil, autherr.New(autherr.KindTokenExpired, "token expired beyond clock tolerance", nil)
	}

	return claims, nil
}

func parseClaims(payload []byte) (*Claims, error) {
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (v *Validator) fail(kind autherr.Kind, message string, err error, sourceIP string) error {
	v.logFailure(kind, message, sourceIP)
	return autherr.New(kind, message, err)
}

func (v *Validator) logFailure(kind autherr.Kind, reason, sourceIP string) {
	if v.recorder == nil {
		return
	}
	v.recorder.LogFailure(audit.FailureEvent{
		Kind:     kind,
		Reason:   reason,
		SourceIP: sourceIP,
	})
}

func (v *Validator) alert(a audit.SecurityAlert) {
	if v.recorder == nil {
		return
	}
	v.recorder.LogAlert(a)
}
