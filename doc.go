// Package realmgate is a request-time authentication gateway. It validates
// bearer tokens issued by an external identity provider, derives a trusted
// identity context for downstream handlers and defends the endpoint against
// abuse.
//
// The gateway composes the subpackages into a single per-request entry point:
//
//	keys, _ := jwks.New(jwks.WithJWKSURI(jwksURI))
//	auditor := audit.New(logger)
//	v, _ := validator.New(keys, issuer,
//	    validator.WithAudience("my-api"),
//	    validator.WithAuditor(auditor),
//	)
//	limiter, _ := ratelimit.New(ratelimit.WithLimit(100))
//	gateway, _ := realmgate.New(
//	    realmgate.WithValidator(v),
//	    realmgate.WithRateLimiter(limiter),
//	    realmgate.WithAuditor(auditor),
//	    realmgate.WithLogger(logger),
//	)
//
//	http.Handle("/api/", gateway.CheckAuth(apiHandler))
//
// Authenticate returns an explicit result: either proceed with an identity or
// reject with a ready-to-write error response. The HTTP middleware, the gin
// and echo adapters and the gRPC interceptor in framework/ are thin wrappers
// over that call, so the core stays framework-agnostic.
package realmgate
