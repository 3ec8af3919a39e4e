package audit

import (
	"strings"
	"time"

	"github.com/realmgate/realmgate/autherr"
)

const (
	defaultTrackingWindow   = 5 * time.Minute
	defaultFailureThreshold = 5
	burstThreshold          = 3
	burstGap                = 2 * time.Second
	distinctKindThreshold   = 3
	distinctEndpointLimit   = 5
	maxTagsPerEntry         = 50
)

// User-agent fragments typical of command-line tools and scanners. Matching
// is case-insensitive substring; an empty user agent also counts.
var suspiciousAgentFragments = []string{
	"curl", "wget", "python-requests", "python-urllib", "go-http-client",
	"java/", "libwww-perl", "httpie", "postman", "insomnia",
	"sqlmap", "nikto", "nmap", "masscan", "zgrab", "dirbuster", "gobuster",
	"bot", "crawler", "spider", "scanner",
}

// failureEntry is the tracked history for one client key.
type failureEntry struct {
	count     int
	lastAt    time.Time
	tags      []string
	tagTimes  []time.Time
	kinds     map[autherr.Kind]struct{}
	endpoints map[string]struct{}
}

// failureTracker holds per-client failure entries. Callers serialize access;
// the Auditor wraps every call in its mutex.
type failureTracker struct {
	entries          map[string]*failureEntry
	window           time.Duration
	failureThreshold int
	now              func() time.Time
}

func newFailureTracker() *failureTracker {
	return &failureTracker{
		entries:          make(map[string]*failureEntry),
		window:           defaultTrackingWindow,
		failureThreshold: defaultFailureThreshold,
		now:              time.Now,
	}
}

// record updates the entry for clientKey and returns the alerts raised by the
// heuristics, each evaluated independently. Stale entries across the whole
// map are purged lazily on every write; no background sweeper exists.
func (t *failureTracker) record(clientKey string, kind autherr.Kind, endpoint, method, userAgent string) []SecurityAlert {
	now := t.now()
	t.purge(now)

	e, ok := t.entries[clientKey]
	if ok && now.Sub(e.lastAt) >= t.window {
		// Window fully elapsed since the last failure: start over.
		ok = false
	}
	if !ok {
		e = &failureEntry{
			kinds:     make(map[autherr.Kind]struct{}),
			endpoints: make(map[string]struct{}),
		}
		t.entries[clientKey] = e
	}

	e.count++
	e.lastAt = now
	tag := string(kind) + ":" + method + ":" + endpoint
	e.tags = append(e.tags, tag)
	e.tagTimes = append(e.tagTimes, now)
	if len(e.tags) > maxTagsPerEntry {
		e.tags = e.tags[len(e.tags)-maxTagsPerEntry:]
		e.tagTimes = e.tagTimes[len(e.tagTimes)-maxTagsPerEntry:]
	}
	e.kinds[kind] = struct{}{}
	e.endpoints[endpoint] = struct{}{}

	var alerts []SecurityAlert

	if e.count >= t.failureThreshold {
		alerts = append(alerts, SecurityAlert{
			Type:     AlertHighFrequencyFailures,
			Severity: SeverityHigh,
			SourceIP: clientKey,
			Details: map[string]any{
				"failure_count": e.count,
				"window":        t.window.String(),
			},
		})
	}

	if t.isBurst(e) {
		alerts = append(alerts, SecurityAlert{
			Type:     AlertRapidFailureBurst,
			Severity: SeverityMedium,
			SourceIP: clientKey,
			Details: map[string]any{
				"burst_size": burstThreshold,
			},
		})
	}

	if len(e.kinds) >= distinctKindThreshold {
		alerts = append(alerts, SecurityAlert{
			Type:     AlertMultipleErrorTypes,
			Severity: SeverityMedium,
			SourceIP: clientKey,
			Details: map[string]any{
				"distinct_error_types": len(e.kinds),
			},
		})
	}

	if isSuspiciousUserAgent(userAgent) {
		alerts = append(alerts, SecurityAlert{
			Type:     AlertSuspiciousUserAgent,
			Severity: SeverityLow,
			SourceIP: clientKey,
			Details: map[string]any{
				"user_agent": userAgent,
			},
		})
	}

	if len(e.endpoints) >= distinctEndpointLimit {
		alerts = append(alerts, SecurityAlert{
			Type:     AlertEndpointScanning,
			Severity: SeverityHigh,
			SourceIP: clientKey,
			Details: map[string]any{
				"distinct_endpoints": len(e.endpoints),
			},
		})
	}

	return alerts
}

func (t *failureTracker) count(clientKey string) int {
	e, ok := t.entries[clientKey]
	if !ok || t.now().Sub(e.lastAt) >= t.window {
		return 0
	}
	return e.count
}

// isBurst reports whether the most recent burstThreshold failures arrived in
// immediate succession.
func (t *failureTracker) isBurst(e *failureEntry) bool {
	n := len(e.tagTimes)
	if n < burstThreshold {
		return false
	}
	recent := e.tagTimes[n-burstThreshold:]
	for i := 1; i < len(recent); i++ {
		if recent[i].Sub(recent[i-1]) > burstGap {
			return false
		}
	}
	return true
}

// purge drops entries idle for twice the tracking window.
func (t *failureTracker) purge(now time.Time) {
	cutoff := 2 * t.window
	for key, e := range t.entries {
		if now.Sub(e.lastAt) >= cutoff {
			delete(t.entries, key)
		}
	}
}

func isSuspiciousUserAgent(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}
	ua := strings.ToLower(userAgent)
	for _, fragment := range suspiciousAgentFragments {
		if strings.Contains(ua, fragment) {
			return true
		}
	}
	return false
}
