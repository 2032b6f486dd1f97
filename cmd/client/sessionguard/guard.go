package sessionguard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/singleflight"
)

const (
	defaultReconnectBackoff = 3 * time.Second
	defaultRefreshTimeout   = 10 * time.Second

	refreshKey = "session"
)

// User is the principal returned by the auth API.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	OrgID     string    `json:"orgId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Guard holds one client session.
type Guard struct {
	base   *url.URL
	client *http.Client
	log    *slog.Logger

	origin         string
	backoff        time.Duration
	refreshTimeout time.Duration

	refreshes singleflight.Group

	mu       sync.RWMutex
	epoch    uint64 // bumped by clear; a refresh started in an older epoch is discarded
	access   string
	user     *User
	logoutCh chan struct{}
	signaled bool
	conn     *websocket.Conn
}

// Option configures a Guard.
type Option func(*Guard)

// WithHTTPClient uses c for API calls. A cookie jar is installed when c has none.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Guard) {
		if c != nil {
			g.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// WithReconnectBackoff sets the fixed delay between websocket reconnect attempts.
func WithReconnectBackoff(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.backoff = d
		}
	}
}

// WithOrigin sends an Origin header on the websocket handshake.
func WithOrigin(origin string) Option {
	return func(g *Guard) { g.origin = strings.TrimSpace(origin) }
}

// New returns a Guard for the API rooted at baseURL (http or https).
func New(baseURL string, opts ...Option) (*Guard, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("sessionguard: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("sessionguard: base url must be http(s)://host, got %q", baseURL)
	}

	g := &Guard{
		base:           u,
		client:         &http.Client{Timeout: 15 * time.Second},
		log:            slog.Default(),
		backoff:        defaultReconnectBackoff,
		refreshTimeout: defaultRefreshTimeout,
		logoutCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		g.client.Jar = jar
	}
	return g, nil
}

// User returns the current principal, or nil when logged out.
func (g *Guard) User() *User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.user == nil {
		return nil
	}
	u := *g.user
	return &u
}

// AccessToken returns the in-memory access token ("" when logged out).
func (g *Guard) AccessToken() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.access
}

// Authenticated reports whether the guard holds an access token.
func (g *Guard) Authenticated() bool {
	return g.AccessToken() != ""
}

// LogoutSignal returns a channel that is closed when the session is ended by force.
// A later successful login arms a new channel.
func (g *Guard) LogoutSignal() <-chan struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.logoutCh
}

// Restore tries to resume a session from the refresh cookie: one shared refresh, then
// GET /auth/me. Failure is the normal anonymous case and yields (nil, nil).
func (g *Guard) Restore(ctx context.Context) (*User, error) {
	epoch := g.currentEpoch()
	if _, err := g.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.clear()
		return nil, nil
	}

	u, err := g.me(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.log.Info("sessionguard.restore.me_failed", "err", err)
		g.clear()
		return nil, nil
	}

	g.mu.Lock()
	if g.epoch != epoch {
		g.mu.Unlock()
		return nil, nil
	}
	g.user = u
	g.armLocked()
	g.mu.Unlock()
	return g.User(), nil
}

// Login authenticates with email and password.
func (g *Guard) Login(ctx context.Context, email, password string) (*User, error) {
	return g.startSession(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// Register creates an account and starts a session for it.
func (g *Guard) Register(ctx context.Context, in RegisterInput) (*User, error) {
	return g.startSession(ctx, "/auth/register", in)
}

func (g *Guard) startSession(ctx context.Context, path string, body any) (*User, error) {
	var out struct {
		User        User   `json:"user"`
		AccessToken string `json:"accessToken"`
	}
	if err := g.postJSON(ctx, path, body, &out); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.access = out.AccessToken
	g.user = &out.User
	g.armLocked()
	g.mu.Unlock()

	return g.User(), nil
}

// Logout ends the session on the server and always clears local state.
// Server-side failures are logged and otherwise ignored.
func (g *Guard) Logout(ctx context.Context) {
	if err := g.postJSON(ctx, "/auth/logout", nil, nil); err != nil {
		g.log.Info("sessionguard.logout.server_failed", "err", err)
	}
	g.clear()
}

// Refresh obtains a new access token using the refresh cookie. Concurrent callers share
// one request and its result.
//
// A refresh that completes after Logout (or a forced logout) is discarded: the rotated
// refresh token it obtained is revoked and ErrNotAuthenticated is returned.
func (g *Guard) Refresh(ctx context.Context) (string, error) {
	epoch := g.currentEpoch()
	ch := g.refreshes.DoChan(refreshKey, func() (any, error) {
		// Detached from the first caller so its cancellation does not fail the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.refreshTimeout)
		defer cancel()

		var out struct {
			AccessToken string `json:"accessToken"`
		}
		if err := g.postJSON(rctx, "/auth/refresh", nil, &out); err != nil {
			return "", err
		}

		g.mu.Lock()
		stale := g.epoch != epoch
		loggedOut := g.access == "" && g.user == nil
		if !stale {
			g.access = out.AccessToken
		}
		g.mu.Unlock()

		if stale {
			// A newer login owns the jar now; only revoke while still logged out.
			if !loggedOut {
				return "", ErrNotAuthenticated
			}
			if err := g.postJSON(rctx, "/auth/logout", nil, nil); err != nil {
				g.log.Info("sessionguard.refresh.stale_revoke_failed", "err", err)
			}
			g.log.Info("sessionguard.refresh.discarded")
			return "", ErrNotAuthenticated
		}
		return out.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Do sends req with the access token attached. A 401 on a non-auth path triggers one
// shared refresh and a single retry; if the refresh fails the session is force-ended and
// ErrSessionExpired is returned. Requests with a body must set GetBody to be retried.
func (g *Guard) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	tok := g.AccessToken()
	if tok == "" {
		return nil, ErrNotAuthenticated
	}

	resp, err := g.client.Do(withBearer(ctx, req, tok))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || strings.HasPrefix(req.URL.Path, "/auth/") {
		return resp, nil
	}
	drainClose(resp)

	newTok, err := g.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.log.Info("sessionguard.refresh.failed", "err", err)
		g.forceLogout()
		return nil, ErrSessionExpired
	}

	retry := withBearer(ctx, req, newTok)
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, errors.New("sessionguard: request body cannot be replayed")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return g.client.Do(retry)
}

func (g *Guard) me(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("/auth/me"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(withBearer(ctx, req, g.AccessToken()))
	if err != nil {
		return nil, err
	}
	defer drainClose(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var out struct {
		User User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (g *Guard) postJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer drainClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// clear drops local session state and closes any open websocket.
func (g *Guard) clear() {
	g.refreshes.Forget(refreshKey)

	g.mu.Lock()
	g.epoch++
	g.access = ""
	g.user = nil
	conn := g.conn
	g.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "logged out")
	}
}

func (g *Guard) currentEpoch() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.epoch
}

// armLocked replaces a fired logout signal. g.mu must be held.
func (g *Guard) armLocked() {
	if g.signaled {
		g.logoutCh = make(chan struct{})
		g.signaled = false
	}
}

func (g *Guard) forceLogout() {
	g.clear()

	g.mu.Lock()
	if !g.signaled {
		close(g.logoutCh)
		g.signaled = true
	}
	g.mu.Unlock()

	g.log.Info("sessionguard.logout.forced")
}

func (g *Guard) endpoint(path string) string {
	return g.base.String() + path
}

func withBearer(ctx context.Context, req *http.Request, tok string) *http.Request {
	r := req.Clone(ctx)
	if tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	return r
}

func decodeAPIError(resp *http.Response) error {
	ae := &APIError{Status: resp.StatusCode}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env); err == nil {
		ae.Code = env.Error.Code
		ae.Message = env.Error.Message
	}
	return ae
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
