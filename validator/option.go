package validator

import (
	"fmt"
	"time"

	"github.com/realmgate/realmgate/audit"
)

// Option configures a Validator.
type Option func(*Validator) error

// WithAudience sets the audience the token must carry. When unset, audience
// verification is skipped.
func WithAudience(audience string) Option {
	return func(v *Validator) error {
		v.audience = audience
		return nil
	}
}

// WithClockTolerance sets the leeway applied to expiry checks. Defaults to
// 30 seconds.
func WithClockTolerance(d time.Duration) Option {
	return func(v *Validator) error {
		if d < 0 {
			return fmt.Errorf("clock tolerance cannot be negative")
		}
		v.clockTolerance = d
		return nil
	}
}

// WithAllowedAlgorithms replaces the signature algorithm allow-list. The
// "none" algorithm is rejected outright; allowing it is never valid.
func WithAllowedAlgorithms(algs ...string) Option {
	return func(v *Validator) error {
		if len(algs) == 0 {
			return fmt.Errorf("allow-list cannot be empty")
		}
		allowed := make(map[string]bool, len(algs))
		for _, alg := range algs {
			if alg == "none" || alg == "" {
				return fmt.Errorf("algorithm %q cannot be allow-listed", alg)
			}
			allowed[alg] = true
		}
		v.allowedAlgs = allowed
		return nil
	}
}

// WithAuditor attaches the audit recorder that receives one event per
// validation failure.
func WithAuditor(rec audit.Recorder) Option {
	return func(v *Validator) error {
		if rec == nil {
			return fmt.Errorf("auditor cannot be nil")
		}
		v.recorder = rec
		return nil
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		v.now = now
		return nil
	}
}
