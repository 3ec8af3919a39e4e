package audit

import (
	"time"

	"github.com/realmgate/realmgate/autherr"
)

// Severity grades a SecurityAlert.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Alert types raised by the gateway and the failure-pattern detector.
const (
	AlertInvalidTokenStructure = "INVALID_TOKEN_STRUCTURE"
	AlertRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	AlertHighFrequencyFailures = "HIGH_FREQUENCY_FAILURES"
	AlertRapidFailureBurst     = "RAPID_FAILURE_BURST"
	AlertMultipleErrorTypes    = "MULTIPLE_ERROR_TYPES"
	AlertSuspiciousUserAgent   = "SUSPICIOUS_USER_AGENT"
	AlertEndpointScanning      = "ENDPOINT_SCANNING"
)

// SuccessEvent records a successful authentication.
type SuccessEvent struct {
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
	Subject       string    `json:"subject"`
	Username      string    `json:"username"`
	SourceIP      string    `json:"source_ip"`
	Endpoint      string    `json:"endpoint"`
	Method        string    `json:"method"`
	ServiceAcct   bool      `json:"service_account"`
}

// FailureEvent records a failed authentication attempt.
type FailureEvent struct {
	CorrelationID string       `json:"correlation_id"`
	Timestamp     time.Time    `json:"timestamp"`
	Kind          autherr.Kind `json:"kind"`
	Reason        string       `json:"reason"`
	SourceIP      string       `json:"source_ip"`
	Endpoint      string       `json:"endpoint"`
	Method        string       `json:"method"`
	UserAgent     string       `json:"user_agent"`
}

// ExpiryEvent records a rejected expired token. Split from FailureEvent
// because expiry is routine and usually alarmed differently.
type ExpiryEvent struct {
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
	Subject       string    `json:"subject"`
	SourceIP      string    `json:"source_ip"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// SecurityAlert is a point-in-time signal of suspicious activity. It is
// emitted, never stored.
type SecurityAlert struct {
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	SourceIP  string         `json:"source_ip"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}
