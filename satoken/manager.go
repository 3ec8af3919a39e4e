// Package satoken acquires, caches and refreshes client-credentials tokens
// for machine-to-machine callers. One Manager serves many credentials; each
// credentials identity (clientID#realm) has its own cached token record.
package satoken

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// defaultExpiryBuffer is subtracted from token lifetimes so callers never
	// receive a token about to expire mid-flight.
	defaultExpiryBuffer = 30 * time.Second
)

// Credentials identifies a confidential client in a configured realm.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Realm        string
	Scope        string
}

func (c Credentials) key() string {
	return c.ClientID + "#" + c.Realm
}

// Token is a cached client-credentials token record.
type Token struct {
	AccessToken      string
	TokenType        string
	ExpiresAt        time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Info describes the cached state for one credentials identity without
// exposing token material.
type Info struct {
	HasToken         bool
	ExpiresAt        time.Time
	CanRefresh       bool
	RefreshExpiresAt time.Time
}

// tokenResponse is the identity provider's token endpoint response.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
}

// Verifier optionally confirms an acquired token really represents a service
// account. The gateway wires its token validator plus identity extraction
// here; tests substitute fakes.
type Verifier interface {
	VerifyServiceAccount(ctx context.Context, accessToken string) error
}

// Manager holds the per-credentials token cache. Safe for concurrent use.
type Manager struct {
	httpClient   *http.Client
	realms       map[string]string // realm name -> token endpoint URL
	expiryBuffer time.Duration
	verifier     Verifier
	now          func() time.Time

	mu     sync.Mutex
	tokens map[string]Token
}

// New builds a Manager. At least one realm must be configured via WithRealm.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		realms:       make(map[string]string),
		expiryBuffer: defaultExpiryBuffer,
		now:          time.Now,
		tokens:       make(map[string]Token),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if len(m.realms) == 0 {
		return nil, fmt.Errorf("at least one realm must be configured (use WithRealm)")
	}
	return m, nil
}

// Acquire returns a valid token for creds. A cached token still inside its
// lifetime is returned without a network call. A near-expiry token with a
// live refresh token triggers one refresh attempt; if that fails, one fresh
// client-credentials acquisition runs. A failed fresh acquisition surfaces to
// the caller; there is no retry loop.
func (m *Manager) Acquire(ctx context.Context, creds Credentials) (Token, error) {
	endpoint, err := m.validate(creds)
	if err != nil {
		return Token{}, err
	}

	now := m.now()
	m.mu.Lock()
	cached, ok := m.tokens[creds.key()]
	m.mu.Unlock()

	if ok && now.Before(cached.ExpiresAt) {
		return cached, nil
	}

	if ok && cached.RefreshToken != "" && now.Before(cached.RefreshExpiresAt) {
		refreshed, err := m.refreshGrant(ctx, endpoint, creds, cached.RefreshToken)
		if err == nil {
			return m.store(ctx, creds, refreshed)
		}
		// Refresh failed; fall back to a fresh acquisition.
	}

	acquired, err := m.clientCredentialsGrant(ctx, endpoint, creds)
	if err != nil {
		return Token{}, err
	}
	return m.store(ctx, creds, acquired)
}

// Refresh exchanges refreshToken for new tokens, replacing the cached record.
func (m *Manager) Refresh(ctx context.Context, creds Credentials, refreshToken string) (Token, error) {
	endpoint, err := m.validate(creds)
	if err != nil {
		return Token{}, err
	}
	if refreshToken == "" {
		return Token{}, fmt.Errorf("refresh token is required")
	}

	refreshed, err := m.refreshGrant(ctx, endpoint, creds, refreshToken)
	if err != nil {
		return Token{}, err
	}
	return m.store(ctx, creds, refreshed)
}

// Info reports the cached token state for creds.
func (m *Manager) Info(creds Credentials) Info {
	m.mu.Lock()
	cached, ok := m.tokens[creds.key()]
	m.mu.Unlock()

	if !ok {
		return Info{}
	}
	now := m.now()
	return Info{
		HasToken:         true,
		ExpiresAt:        cached.ExpiresAt,
		CanRefresh:       cached.RefreshToken != "" && now.Before(cached.RefreshExpiresAt),
		RefreshExpiresAt: cached.RefreshExpiresAt,
	}
}

// Clear drops the cached token for creds.
func (m *Manager) Clear(creds Credentials) {
	m.mu.Lock()
	delete(m.tokens, creds.key())
	m.mu.Unlock()
}

// ClearAll drops every cached token.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	m.tokens = make(map[string]Token)
	m.mu.Unlock()
}

// validate rejects incomplete credentials before any network call.
func (m *Manager) validate(creds Credentials) (string, error) {
	if creds.ClientID == "" {
		return "", fmt.Errorf("client id is required")
	}
	if creds.ClientSecret == "" {
		return "", fmt.Errorf("client secret is required")
	}
	endpoint, ok := m.realms[creds.Realm]
	if !ok {
		return "", fmt.Errorf("realm %q is not configured", creds.Realm)
	}
	return endpoint, nil
}

// store runs the optional service-account check, caches the token and
// returns it. A token failing the check is not cached and the acquisition is
// reported as failed even though the network call succeeded.
func (m *Manager) store(ctx context.Context, creds Credentials, tok Token) (Token, error) {
	if m.verifier != nil {
		if err := m.verifier.VerifyServiceAccount(ctx, tok.AccessToken); err != nil {
			return Token{}, fmt.Errorf("acquired token is not a service-account token: %w", err)
		}
	}

	m.mu.Lock()
	m.tokens[creds.key()] = tok
	m.mu.Unlock()
	return tok, nil
}

func (m *Manager) clientCredentialsGrant(ctx context.Context, endpoint string, creds Credentials) (Token, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
	}
	if creds.Scope != "" {
		data.Set("scope", creds.Scope)
	}
	return m.requestToken(ctx, endpoint, data)
}

func (m *Manager) refreshGrant(ctx context.Context, endpoint string, creds Credentials, refreshToken string) (Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
	}
	return m.requestToken(ctx, endpoint, data)
}

func (m *Manager) requestToken(ctx context.Context, endpoint string, data url.Values) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Token{}, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Token{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return Token{}, fmt.Errorf("token response has no access token")
	}
	if tr.ExpiresIn <= 0 {
		// Caching a token with no lifetime would leave an already-expired
		// record that forces a network call on every acquire.
		return Token{}, fmt.Errorf("token response has no usable expires_in")
	}

	now := m.now()
	tok := Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		ExpiresAt:   now.Add(time.Duration(tr.ExpiresIn)*time.Second - m.expiryBuffer),
	}
	if tr.RefreshToken != "" {
		tok.RefreshToken = tr.RefreshToken
		tok.RefreshExpiresAt = now.Add(time.Duration(tr.RefreshExpiresIn)*time.Second - m.expiryBuffer)
	}
	return tok, nil
}
