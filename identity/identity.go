// Package identity maps verified token claims into the normalized identity
// context attached to authenticated requests.
package identity

import (
	"strings"
	"time"

	"github.com/realmgate/realmgate/validator"
)

// UnknownRealm is used when the issuer URL carries no parseable realm
// segment. Extraction never fails on a malformed issuer.
const UnknownRealm = "unknown"

// serviceAccountPrefix is the username convention identity providers use for
// client-credentials principals.
const serviceAccountPrefix = "service-account-"

// Context is the trusted identity handed to downstream handlers. Derived
// deterministically from claims: extracting twice from the same claims yields
// structurally equal contexts.
type Context struct {
	UserID           string
	Username         string
	Email            string
	Roles            []string
	ClientRoles      map[string][]string
	Realm            string
	IsServiceAccount bool
	TokenID          string
	ExpiresAt        time.Time
}

// Extract builds a Context from verified claims. It is total: claims reaching
// this point have already passed validation, so there is no failure case.
func Extract(claims *validator.Claims) Context {
	username := claims.PreferredUsername
	if username == "" {
		username = claims.Subject
	}

	return Context{
		UserID:           claims.Subject,
		Username:         username,
		Email:            claims.Email,
		Roles:            claims.RealmRoles(),
		ClientRoles:      claims.ClientRoles(),
		Realm:            realmFromIssuer(claims.Issuer),
		IsServiceAccount: isServiceAccount(claims, username),
		TokenID:          claims.TokenID,
		ExpiresAt:        claims.Expiry(),
	}
}

// HasRole reports whether the identity carries the given realm role.
func (c Context) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasClientRole reports whether the identity carries role for clientID.
func (c Context) HasClientRole(clientID, role string) bool {
	for _, r := range c.ClientRoles[clientID] {
		if r == role {
			return true
		}
	}
	return false
}

// realmFromIssuer parses the path segment following /realms/ out of the
// issuer URL. Malformed issuers map to UnknownRealm rather than failing.
func realmFromIssuer(issuer string) string {
	const marker = "/realms/"
	idx := strings.Index(issuer, marker)
	if idx < 0 {
		return UnknownRealm
	}
	rest := coerceRealm(issuer[idx+len(marker):])
	if rest == "" {
		return UnknownRealm
	}
	return rest
}

func coerceRealm(rest string) string {
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

// isServiceAccount applies the recognition rules in order: an explicit claim,
// the naming convention, then an authorized-party claim with no email (the
// shape of a client-credentials token).
func isServiceAccount(claims *validator.Claims, username string) bool {
	if claims.ServiceAccount {
		return true
	}
	if strings.HasPrefix(username, serviceAccountPrefix) {
		return true
	}
	return claims.AuthorizedParty != "" && claims.Email == ""
}
