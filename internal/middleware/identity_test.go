package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentityRejectsMissingUser(t *testing.T) {
	handler := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached without identity")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestIdentityPropagatesHeaders(t *testing.T) {
	var gotID, gotTier string
	handler := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = UserIDFromContext(r.Context())
		gotTier = UserTierFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Tier", "pro")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotID != "user-1" {
		t.Errorf("user id = %q", gotID)
	}
	if gotTier != "pro" {
		t.Errorf("tier = %q", gotTier)
	}
}

func TestIdentityDefaultsTier(t *testing.T) {
	var gotTier string
	handler := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTier = UserTierFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotTier != "free" {
		t.Errorf("tier = %q, want free", gotTier)
	}
}
