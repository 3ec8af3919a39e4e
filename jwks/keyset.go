// Package jwks fetches and caches the identity provider's public signing keys.
//
// A KeySet holds one immutable Snapshot at a time. Fetch replaces the snapshot
// atomically; readers never block on an in-flight fetch and keep seeing the
// previous snapshot until the new one is installed. When the provider is
// unreachable the last good snapshot is served stale rather than failing the
// request; only a fetch with no cached snapshot at all surfaces an error.
package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/realmgate/realmgate/autherr"
)

const (
	defaultCacheTTL    = 15 * time.Minute
	defaultHTTPTimeout = 30 * time.Second

	// maxResponseBytes caps the JWKS document size. Real key sets are a few
	// KB; anything near this limit is garbage.
	maxResponseBytes = 1 * 1024 * 1024
)

// SigningKey is one public signing key, immutable once fetched.
type SigningKey struct {
	KeyID     string
	Algorithm string
	// Material is the usable public key (*rsa.PublicKey, *ecdsa.PublicKey or
	// ed25519.PublicKey) converted from the wire representation.
	Material any
}

// Snapshot is one fetched key set. It is never mutated after construction;
// refresh installs a whole new Snapshot.
type Snapshot struct {
	keys      map[string]SigningKey
	FetchedAt time.Time
}

// NewSnapshot builds a snapshot from the given keys. Intended for static key
// configuration and tests; Fetch-produced snapshots come from the provider.
func NewSnapshot(keys ...SigningKey) *Snapshot {
	m := make(map[string]SigningKey, len(keys))
	for _, k := range keys {
		m[k.KeyID] = k
	}
	return &Snapshot{keys: m, FetchedAt: time.Now()}
}

// Key looks up a signing key by id in this snapshot.
func (s *Snapshot) Key(keyID string) (SigningKey, bool) {
	if s == nil {
		return SigningKey{}, false
	}
	k, ok := s.keys[keyID]
	return k, ok
}

// Len reports the number of usable keys in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// KeySet fetches and caches the provider's JWKS document. Safe for concurrent
// use. Construct with New; the zero value is not usable.
type KeySet struct {
	jwksURI    string
	httpClient *http.Client
	cacheTTL   time.Duration

	mu       sync.RWMutex
	snapshot *Snapshot
}

// New builds a KeySet. WithJWKSURI (or WithIssuerDiscovery at the caller's
// expense) is required.
func New(opts ...Option) (*KeySet, error) {
	ks := &KeySet{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		cacheTTL:   defaultCacheTTL,
	}
	for _, opt := range opts {
		if err := opt(ks); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if ks.jwksURI == "" {
		return nil, fmt.Errorf("JWKS URI is required (use WithJWKSURI or WithIssuerDiscovery)")
	}
	return ks, nil
}

// Cached returns the current snapshot, or nil when nothing has been fetched
// yet. It never triggers a network call.
func (ks *KeySet) Cached() *Snapshot {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.snapshot
}

// Key looks up a signing key by id in the cached snapshot only. Callers that
// miss here should Fetch once to pick up rotated keys and retry.
func (ks *KeySet) Key(keyID string) (SigningKey, bool) {
	return ks.Cached().Key(keyID)
}

// Fetch returns a snapshot of the provider's keys. A snapshot younger than
// the cache TTL is returned without a network call. On transport failure or a
// non-2xx response the previous snapshot is returned unchanged when one
// exists; otherwise the error carries autherr.KindKeyServiceDown.
func (ks *KeySet) Fetch(ctx context.Context) (*Snapshot, error) {
	if snap := ks.Cached(); snap != nil && time.Since(snap.FetchedAt) < ks.cacheTTL {
		return snap, nil
	}

	snap, err := ks.fetchRemote(ctx)
	if err != nil {
		if stale := ks.Cached(); stale != nil {
			return stale, nil
		}
		return nil, autherr.New(autherr.KindKeyServiceDown, "signing key fetch failed and no cached keys exist", err)
	}

	ks.mu.Lock()
	ks.snapshot = snap
	ks.mu.Unlock()
	return snap, nil
}

// ForceRefresh bypasses the TTL check. Used by the validator when a token
// names a key id absent from the cache, to tolerate key rotation.
func (ks *KeySet) ForceRefresh(ctx context.Context) (*Snapshot, error) {
	snap, err := ks.fetchRemote(ctx)
	if err != nil {
		if stale := ks.Cached(); stale != nil {
			return stale, nil
		}
		return nil, autherr.New(autherr.KindKeyServiceDown, "signing key refresh failed and no cached keys exist", err)
	}

	ks.mu.Lock()
	ks.snapshot = snap
	ks.mu.Unlock()
	return snap, nil
}

func (ks *KeySet) fetchRemote(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.jwksURI, nil)
	if err != nil {
		return nil, fmt.Errorf("could not build JWKS request: %w", err)
	}

	resp, err := ks.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("JWKS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("could not read JWKS response: %w", err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("could not parse JWKS document: %w", err)
	}

	keys := make(map[string]SigningKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, _ := set.Key(i)
		sk, err := signingKeyFromJWK(key)
		if err != nil {
			// Keys missing required fields are skipped, not fatal: the
			// provider may publish keys for algorithms we never accept.
			continue
		}
		keys[sk.KeyID] = sk
	}

	return &Snapshot{keys: keys, FetchedAt: time.Now()}, nil
}

// signingKeyFromJWK converts a parsed JWK into a SigningKey. Pure: no I/O, no
// state. Keys without a key id or without usable public material are rejected.
func signingKeyFromJWK(key jwk.Key) (SigningKey, error) {
	if key == nil {
		return SigningKey{}, fmt.Errorf("nil key")
	}
	kid := key.KeyID()
	if kid == "" {
		return SigningKey{}, fmt.Errorf("key has no kid")
	}

	pub, err := key.PublicKey()
	if err != nil {
		return SigningKey{}, fmt.Errorf("key %q has no public form: %w", kid, err)
	}

	var material any
	if err := pub.Raw(&material); err != nil {
		return SigningKey{}, fmt.Errorf("key %q has unusable material: %w", kid, err)
	}

	alg := ""
	if a := key.Algorithm(); a != nil {
		alg = a.String()
	}

	return SigningKey{KeyID: kid, Algorithm: alg, Material: material}, nil
}
