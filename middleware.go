package realmgate

import (
	"encoding/json"
	"net/http"
)

// CheckAuth wraps next with the full authentication pipeline. Rejections are
// written as JSON with the responder's status and headers; on success the
// identity is stored in the request context for IdentityFrom.
func (g *Gateway) CheckAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := g.Authenticate(r.Context(), RequestFromHTTP(r))
		if !result.Proceed() {
			WriteErrorResponse(w, *result.Rejection)
			return
		}

		w.Header().Set(CorrelationIDHeader, result.CorrelationID)
		ctx := SetIdentity(r.Context(), result.Identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WriteErrorResponse renders resp onto w: headers first, then status, then
// the JSON body.
func WriteErrorResponse(w http.ResponseWriter, resp ErrorResponse) {
	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)

	// The body is a fixed four-field struct; encoding cannot fail.
	_ = json.NewEncoder(w).Encode(resp.Body)
}
