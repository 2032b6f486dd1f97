package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetRefreshCookie_Attributes(t *testing.T) {
	h := &Handler{cfg: Config{CookieSecure: true}}

	rr := httptest.NewRecorder()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	h.setRefreshCookie(rr, "refresh-token-123", now.Add(14*24*time.Hour), now)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "refreshToken" || c.Value != "refresh-token-123" {
		t.Fatalf("unexpected cookie: %s=%s", c.Name, c.Value)
	}
	if c.Path != "/auth" {
		t.Fatalf("expected path /auth, got %q", c.Path)
	}
	if !c.HttpOnly || !c.Secure {
		t.Fatalf("expected HttpOnly and Secure, got httpOnly=%v secure=%v", c.HttpOnly, c.Secure)
	}
	if c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected SameSite=Strict, got %v", c.SameSite)
	}
	if c.MaxAge != 14*24*60*60 {
		t.Fatalf("expected 14d max-age, got %d", c.MaxAge)
	}
}

func TestClearRefreshCookie(t *testing.T) {
	h := &Handler{}

	rr := httptest.NewRecorder()
	h.clearRefreshCookie(rr)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Value != "" || c.MaxAge >= 0 || c.Path != "/auth" {
		t.Fatalf("expected an expired cookie on /auth, got %+v", c)
	}
}

func TestRefreshTokenFromCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	if got := refreshTokenFromCookie(req); got != "" {
		t.Fatalf("expected empty token without cookie, got %q", got)
	}

	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: " tok-123 "})
	if got := refreshTokenFromCookie(req); got != "tok-123" {
		t.Fatalf("unexpected cookie token: %q", got)
	}
}
