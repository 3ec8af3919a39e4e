package validator

import (
	"encoding/json"
	"fmt"
	"time"
)

// Audience handles the aud claim being either a string or an array of
// strings, both of which identity providers emit in the wild.
type Audience []string

// UnmarshalJSON implements json.Unmarshaler.
func (a *Audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = Audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("aud claim is neither string nor string array: %w", err)
	}
	*a = Audience(many)
	return nil
}

// Contains reports whether the audience includes value.
func (a Audience) Contains(value string) bool {
	for _, v := range a {
		if v == value {
			return true
		}
	}
	return false
}

type roleList struct {
	Roles []string `json:"roles"`
}

// Claims is the verified token payload. Produced once per validated token and
// never mutated afterwards. The shape follows the realm/resource role layout
// used by Keycloak-style identity providers.
type Claims struct {
	Subject           string              `json:"sub"`
	PreferredUsername string              `json:"preferred_username"`
	Email             string              `json:"email"`
	RealmAccess       roleList            `json:"realm_access"`
	ResourceAccess    map[string]roleList `json:"resource_access"`
	Issuer            string              `json:"iss"`
	Audience          Audience            `json:"aud"`
	ExpiresAt         int64               `json:"exp"`
	IssuedAt          int64               `json:"iat"`
	TokenID           string              `json:"jti"`
	AuthorizedParty   string              `json:"azp"`
	ServiceAccount    bool                `json:"service_account"`
}

// RealmRoles returns a copy of the realm-level role list, never nil. Copying
// keeps the claims immutable when callers mutate the returned slice.
func (c *Claims) RealmRoles() []string {
	roles := make([]string, len(c.RealmAccess.Roles))
	copy(roles, c.RealmAccess.Roles)
	return roles
}

// ClientRoles flattens the per-client role map into copies, never nil.
func (c *Claims) ClientRoles() map[string][]string {
	out := make(map[string][]string, len(c.ResourceAccess))
	for client, access := range c.ResourceAccess {
		roles := make([]string, len(access.Roles))
		copy(roles, access.Roles)
		out[client] = roles
	}
	return out
}

// Expiry returns the exp claim as a time.Time.
func (c *Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}
