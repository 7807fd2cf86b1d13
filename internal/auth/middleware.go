package auth

import (
	"net/http"
	"strings"
)

// Middleware authenticates gauge API requests and enforces the policy.
type Middleware struct {
	verifier *Verifier
	policy   Policy
}

// NewMiddleware constructs the middleware.
func NewMiddleware(verifier *Verifier, policy Policy) *Middleware {
	return &Middleware{verifier: verifier, policy: policy}
}

// Wrap guards next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, guarded := m.policy.Access(r)
		if !guarded {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := m.verifier.Verify(tokenFor(r, access))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="energy-gauge"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !RoleAtLeast(identity.Role, access.Role) {
			http.Error(w, "forbidden: requires "+string(access.Role), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func tokenFor(r *http.Request, access Access) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if access.QueryToken {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
