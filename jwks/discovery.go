package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
)

// wellKnownEndpoints is the subset of the OIDC discovery document we consume.
type wellKnownEndpoints struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// DiscoverJWKSURI resolves the issuer's JWKS endpoint through the
// .well-known/openid-configuration document. The returned URI can be passed
// to WithJWKSURI. The discovery document's issuer must match the requested
// issuer exactly; a mismatch means the metadata was served for the wrong
// tenant and is rejected.
func DiscoverJWKSURI(ctx context.Context, client *http.Client, issuerURL string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	parsed, err := url.Parse(issuerURL)
	if err != nil {
		return "", fmt.Errorf("could not parse issuer URL: %w", err)
	}
	wellKnown := *parsed
	wellKnown.Path = path.Join(wellKnown.Path, ".well-known/openid-configuration")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown.String(), nil)
	if err != nil {
		return "", fmt.Errorf("could not build discovery request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not get discovery document from %s: %w", wellKnown.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var endpoints wellKnownEndpoints
	if err := json.NewDecoder(resp.Body).Decode(&endpoints); err != nil {
		return "", fmt.Errorf("could not decode discovery document: %w", err)
	}

	if endpoints.Issuer != "" && endpoints.Issuer != issuerURL {
		return "", fmt.Errorf("discovery document issuer %q does not match requested issuer %q", endpoints.Issuer, issuerURL)
	}
	if endpoints.JWKSURI == "" {
		return "", fmt.Errorf("discovery document has no jwks_uri")
	}

	return endpoints.JWKSURI, nil
}
