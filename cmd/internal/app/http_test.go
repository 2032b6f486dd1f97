package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	v1 "predixa/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PREDIXA_JWT_ACCESS_SECRET", "access-secret-for-tests-0123456789abcdef")
	t.Setenv("PREDIXA_JWT_REFRESH_SECRET", "refresh-secret-for-tests-0123456789abcdef")
	t.Setenv("PREDIXA_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("PREDIXA_ARGON2_ITERATIONS", "1")
	t.Setenv("PREDIXA_DATABASE_URL", "")
	t.Setenv("PREDIXA_USER_STORE", "")
}

func newTestApp(t *testing.T, mutate func(*Config)) (*App, *httptest.Server) {
	t.Helper()
	setTestEnv(t)

	cfg := LoadConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(a.hub.Close)
	return a, srv
}

func getBody(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b), resp.Header
}

func TestApp_HealthAndReadiness(t *testing.T) {
	_, srv := newTestApp(t, nil)

	code, body, hdr := getBody(t, srv.URL+"/healthz")
	if code != http.StatusOK || body != "ok\n" {
		t.Fatalf("healthz: %d %q", code, body)
	}
	if hdr.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing on healthz")
	}

	if code, body, _ := getBody(t, srv.URL+"/readyz"); code != http.StatusOK {
		t.Fatalf("readyz: %d %q", code, body)
	}

	if code, _, _ := getBody(t, srv.URL+"/unknown"); code != http.StatusNotFound {
		t.Fatalf("unknown path: %d", code)
	}
	if code, _, _ := getBody(t, srv.URL+"/"); code != http.StatusNotFound {
		t.Fatalf("plain GET / should 404, got %d", code)
	}
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	_, srv := newTestApp(t, func(c *Config) { c.ReadinessRequireDB = true })

	if code, _, _ := getBody(t, srv.URL+"/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without DB: %d, want 503", code)
	}
}

func TestApp_DemoLoginAndRootWebSocket(t *testing.T) {
	a, srv := newTestApp(t, nil)

	resp, err := http.Post(srv.URL+"/auth/login", "application/json",
		strings.NewReader(`{"email":"operator@predixa.local","password":"demo-plant-42"}`))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("login status=%d body=%s", resp.StatusCode, b)
	}
	var sess struct {
		User struct {
			OrgID string `json:"orgId"`
		} `json:"user"`
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.AccessToken == "" || sess.User.OrgID != "org-demo-plant" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + sess.AccessToken
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial root: %v", err)
	}
	defer c.CloseNow()

	_, b, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m v1.Message
	if err := json.Unmarshal(b, &m); err != nil || m.Type != v1.TypeConnected {
		t.Fatalf("expected connected, got %s (%v)", b, err)
	}

	if n := a.Hub().Broadcast("org-demo-plant", v1.Broadcast("system", json.RawMessage(`{"alert":"line-1 stopped"}`))); n != 1 {
		t.Fatalf("server-side broadcast delivered to %d, want 1", n)
	}
	_, b, err = c.Read(ctx)
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if !strings.Contains(string(b), `"from":"system"`) {
		t.Fatalf("unexpected broadcast frame: %s", b)
	}

	code, body, _ := getBody(t, srv.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics: %d", code)
	}
	for _, name := range []string{
		`predixa_auth_sessions_issued_total{reason="login"} 1`,
		"predixa_auth_memory_refresh_principals 1",
		"predixa_ws_connections 1",
		"predixa_ws_rooms 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %q", name)
		}
	}
}

func TestApp_CORSPreflightForDashboard(t *testing.T) {
	_, srv := newTestApp(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status=%d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("credentials must be allowed for the dashboard origin")
	}
}

func TestNew_RejectsMissingSecrets(t *testing.T) {
	setTestEnv(t)
	t.Setenv("PREDIXA_JWT_ACCESS_SECRET", "")

	if _, err := New(LoadConfig(), slog.New(slog.NewJSONHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected startup failure without access secret")
	}
}

func TestNew_TokenHMACPolicy(t *testing.T) {
	setTestEnv(t)
	t.Setenv("PREDIXA_REQUIRE_TOKEN_HMAC", "true")
	t.Setenv("PREDIXA_TOKEN_HMAC_KEY", "short")

	_, err := New(LoadConfig(), slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err == nil || !strings.Contains(err.Error(), "too short") {
		t.Fatalf("expected HMAC policy error, got %v", err)
	}
}
