package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func TestVerify(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)

	token := signToken(t, secret, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	principal, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if principal != "u1" {
		t.Errorf("Expected principal u1, got %q", principal)
	}
}

func TestVerifyRejects(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)

	testCases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", signToken(t, []byte("other-secret"), jwt.MapClaims{"sub": "u1"})},
		{"missing subject", signToken(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})},
		{"expired", signToken(t, secret, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)

	var gotPrincipal string
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrincipal, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, secret, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if gotPrincipal != "u1" {
		t.Errorf("Expected principal u1 in context, got %q", gotPrincipal)
	}
}

func TestMiddlewareUnauthorized(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("Handler must not run without a valid token")
	}))

	testCases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcg=="},
		{"empty token", "Bearer "},
		{"invalid token", "Bearer junk"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", rec.Code)
			}
		})
	}
}
