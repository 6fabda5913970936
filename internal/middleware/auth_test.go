package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tutorhub/wallet-api/internal/middleware"
	"github.com/tutorhub/wallet-api/internal/pkg/jwt"
)

func TestAuthMiddleware(t *testing.T) {
	jwtSvc := jwt.NewService("test-secret", time.Hour)

	var gotUserID, gotEmail string
	handler := middleware.Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = middleware.GetUserID(r.Context())
		gotEmail = middleware.GetEmail(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := jwtSvc.GenerateAccessToken("user-9", "u9@example.com")
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUserID != "user-9" || gotEmail != "u9@example.com" {
		t.Fatalf("context not populated: userID=%q email=%q", gotUserID, gotEmail)
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	jwtSvc := jwt.NewService("test-secret", time.Hour)
	handler := middleware.Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage token":  "Bearer not-a-token",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	expiredSvc := jwt.NewService("test-secret", -time.Minute)
	token, err := expiredSvc.GenerateAccessToken("user-9", "")
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}

	handler := middleware.Auth(jwt.NewService("test-secret", time.Hour))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
