package identity

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/realmgate/realmgate/validator"
)

func userClaims() *validator.Claims {
	return &validator.Claims{
		Subject:           "f1f9c55f-cd44-4b9e-a731-0f7f1f8a7b8a",
		PreferredUsername: "jdoe",
		Email:             "jdoe@example.com",
		Issuer:            "https://idp.example.com/realms/acme",
		ExpiresAt:         time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC).Unix(),
		TokenID:           "token-1",
	}
}

func TestExtract(t *testing.T) {
	claims := userClaims()
	got := Extract(claims)

	assert.Equal(t, claims.Subject, got.UserID)
	assert.Equal(t, "jdoe", got.Username)
	assert.Equal(t, "jdoe@example.com", got.Email)
	assert.Equal(t, "acme", got.Realm)
	assert.Equal(t, "token-1", got.TokenID)
	assert.False(t, got.IsServiceAccount)
	assert.True(t, got.ExpiresAt.Equal(claims.Expiry()))
	assert.NotNil(t, got.Roles, "role slice is never nil")
	assert.NotNil(t, got.ClientRoles, "client role map is never nil")
}

func TestExtractIsDeterministic(t *testing.T) {
	claims := userClaims()

	first := Extract(claims)
	second := Extract(claims)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("extraction is not deterministic (-first +second):\n%s", diff)
	}
}

func TestExtractUsernameFallsBackToSubject(t *testing.T) {
	claims := userClaims()
	claims.PreferredUsername = ""

	got := Extract(claims)
	assert.Equal(t, claims.Subject, got.Username)
}

func TestRealmFromIssuer(t *testing.T) {
	testCases := []struct {
		name   string
		issuer string
		want   string
	}{
		{
			name:   "standard issuer",
			issuer: "https://idp.example.com/realms/acme",
			want:   "acme",
		},
		{
			name:   "trailing path segment",
			issuer: "https://idp.example.com/realms/acme/protocol/openid-connect",
			want:   "acme",
		},
		{
			name:   "no realms segment",
			issuer: "https://idp.example.com/tenants/acme",
			want:   UnknownRealm,
		},
		{
			name:   "empty realm name",
			issuer: "https://idp.example.com/realms/",
			want:   UnknownRealm,
		},
		{
			name:   "empty issuer",
			issuer: "",
			want:   UnknownRealm,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			claims := userClaims()
			claims.Issuer = testCase.issuer
			assert.Equal(t, testCase.want, Extract(claims).Realm)
		})
	}
}

func TestServiceAccountDetection(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*validator.Claims)
		want   bool
	}{
		{
			name:   "regular user",
			mutate: func(c *validator.Claims) {},
			want:   false,
		},
		{
			name:   "explicit claim",
			mutate: func(c *validator.Claims) { c.ServiceAccount = true },
			want:   true,
		},
		{
			name: "username convention",
			mutate: func(c *validator.Claims) {
				c.PreferredUsername = "service-account-billing"
			},
			want: true,
		},
		{
			name: "authorized party without email",
			mutate: func(c *validator.Claims) {
				c.AuthorizedParty = "billing-service"
				c.Email = ""
			},
			want: true,
		},
		{
			name: "authorized party with email is a user",
			mutate: func(c *validator.Claims) {
				c.AuthorizedParty = "web-app"
			},
			want: false,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			claims := userClaims()
			testCase.mutate(claims)
			assert.Equal(t, testCase.want, Extract(claims).IsServiceAccount)
		})
	}
}

func TestExtractDoesNotAliasClaims(t *testing.T) {
	claims := userClaims()
	claims.RealmAccess.Roles = []string{"admin"}

	ctx := Extract(claims)
	ctx.Roles[0] = "mutated"

	assert.Equal(t, []string{"admin"}, claims.RealmRoles(),
		"mutating the identity must not reach back into the claims")
	assert.Equal(t, []string{"admin"}, Extract(claims).Roles)
}

func TestHasRole(t *testing.T) {
	ctx := Context{Roles: []string{"admin", "user"}}

	assert.True(t, ctx.HasRole("admin"))
	assert.False(t, ctx.HasRole("auditor"))
}

func TestHasClientRole(t *testing.T) {
	ctx := Context{ClientRoles: map[string][]string{
		"billing": {"invoice:read", "invoice:write"},
	}}

	assert.True(t, ctx.HasClientRole("billing", "invoice:read"))
	assert.False(t, ctx.HasClientRole("billing", "invoice:void"))
	assert.False(t, ctx.HasClientRole("shipping", "invoice:read"))
}
