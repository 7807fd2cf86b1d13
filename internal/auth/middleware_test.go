package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	verifier, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	mw := NewMiddleware(verifier, NewPolicy("/healthz", "/metrics"))
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok && r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func signClaims(t *testing.T, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func mustToken(t *testing.T, role string, cards ...string) string {
	t.Helper()
	return signClaims(t, Claims{
		Role:  role,
		Cards: cards,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
}

func TestMiddlewareRequiresToken(t *testing.T) {
	handler := newTestHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/gauges", nil))
	if resp.Code != http.StatusUnauthorized || resp.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected 401 with challenge, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected public healthz, got %d", resp.Code)
	}
}

func TestMiddlewareRoles(t *testing.T) {
	handler := newTestHandler(t)
	viewer := mustToken(t, "viewer")
	operator := mustToken(t, "Operator")
	admin := mustToken(t, " admin ")

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		code   int
	}{
		{"viewer reads gauges", http.MethodGet, "/api/v1/gauges/home", viewer, http.StatusOK},
		{"viewer exports", http.MethodGet, "/api/v1/gauges/home/export.pdf", viewer, http.StatusOK},
		{"viewer lists collections", http.MethodGet, "/api/v1/collections", viewer, http.StatusOK},
		{"viewer cannot refresh", http.MethodPost, "/api/v1/collections/_energy/refresh", viewer, http.StatusForbidden},
		{"operator refreshes", http.MethodPost, "/api/v1/collections/_energy/refresh", operator, http.StatusOK},
		{"operator cannot clear preferences", http.MethodPost, "/api/v1/energy/preferences/clear", operator, http.StatusForbidden},
		{"admin clears preferences", http.MethodPost, "/api/v1/energy/preferences/clear", admin, http.StatusOK},
		{"operator cannot save preferences", http.MethodPut, "/api/v1/energy/preferences", operator, http.StatusForbidden},
		{"admin saves preferences", http.MethodPut, "/api/v1/energy/preferences", admin, http.StatusOK},
		{"viewer reads card", http.MethodGet, "/api/v1/cards/home", viewer, http.StatusOK},
		{"operator cannot edit cards", http.MethodPut, "/api/v1/cards/home", operator, http.StatusForbidden},
		{"admin edits cards", http.MethodPut, "/api/v1/cards/home", admin, http.StatusOK},
		{"bad token", http.MethodGet, "/api/v1/gauges", "not-a-token", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, resp.Code)
			}
		})
	}
}

func TestPolicyQueryTokenOnlyOnStream(t *testing.T) {
	policy := NewPolicy("/healthz")

	access, guarded := policy.Access(httptest.NewRequest(http.MethodGet, "/api/v1/gauges/stream", nil))
	if !guarded || !access.QueryToken || access.Role != RoleViewer {
		t.Fatalf("unexpected stream access %+v", access)
	}
	access, _ = policy.Access(httptest.NewRequest(http.MethodGet, "/api/v1/gauges", nil))
	if access.QueryToken {
		t.Fatal("query tokens must be limited to the stream")
	}
	if _, guarded := policy.Access(httptest.NewRequest(http.MethodGet, "/healthz", nil)); guarded {
		t.Fatal("healthz must be public")
	}

	handler := newTestHandler(t)
	token := mustToken(t, "viewer")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/gauges/stream?access_token="+token, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected stream query token accepted, got %d", resp.Code)
	}
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/gauges?access_token="+token, nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected query token rejected outside the stream, got %d", resp.Code)
	}
}

func TestVerifierIdentity(t *testing.T) {
	verifier, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	identity, err := verifier.Verify(mustToken(t, "viewer", "home", "garage"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Subject != "user-1" || identity.Role != RoleViewer {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if !identity.CanRead("garage") || identity.CanRead("office") {
		t.Fatalf("card scope not applied: %+v", identity)
	}
	if !(Identity{Role: RoleViewer}).CanRead("office") {
		t.Fatal("unscoped identity must read every card")
	}

	if _, err := verifier.Verify(mustToken(t, "owner")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	noSubject := signClaims(t, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	if _, err := verifier.Verify(noSubject); !errors.Is(err, ErrNoSubject) {
		t.Fatalf("expected ErrNoSubject, got %v", err)
	}
	expired := signClaims(t, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	if _, err := verifier.Verify(expired); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
	noExpiry := signClaims(t, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	if _, err := verifier.Verify(noExpiry); err == nil {
		t.Fatal("expected token without expiry rejected")
	}
	if _, err := verifier.Verify(""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if _, err := NewVerifier(nil); err == nil {
		t.Fatal("expected empty secret rejected")
	}
}
