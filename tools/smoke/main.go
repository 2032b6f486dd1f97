// Package main is a CI-friendly end-to-end smoke test for a running Predixa server.
//
// It validates:
//   - 4001 / 4002 closes for missing and bad tokens
//   - login, refresh rotation and /auth/me through the session guard
//   - connected greeting and ping/pong
//   - org broadcast fanout to the sender and a second member
//   - invalid frames answered with an error without dropping the socket
//   - logout revoking the refresh cookie
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"predixa/cmd/client/sessionguard"
	v1 "predixa/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

type peer struct {
	name  string
	guard *sessionguard.Guard
	user  *sessionguard.User
	inbox chan v1.Message
	done  chan error
}

func main() {
	var (
		baseURL   = flag.String("url", "http://127.0.0.1:3001", "Server base URL")
		origin    = flag.String("origin", "http://localhost:3000", "Origin header for the websocket handshake")
		email     = flag.String("email", "admin@predixa.local", "Primary account")
		peerEmail = flag.String("peer-email", "operator@predixa.local", "Second account in the same organization")
		pass      = flag.String("password", "demo-plant-42", "Password for both accounts")
		timeout   = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose   = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	root, cancel := context.WithCancel(context.Background())
	defer cancel()

	mustRejectHandshake(root, *baseURL, *origin, "", v1.CloseNoToken, *timeout)
	mustRejectHandshake(root, *baseURL, *origin, "not-a-jwt", v1.CloseInvalidToken, *timeout)

	a := mustLogin(root, log, "A", *baseURL, *origin, *email, *pass, *timeout)
	b := mustLogin(root, log, "B", *baseURL, *origin, *peerEmail, *pass, *timeout)
	if a.user.OrgID == "" || a.user.OrgID != b.user.OrgID {
		fatalf("accounts must share an organization: A=%q B=%q", a.user.OrgID, b.user.OrgID)
	}

	mustRefreshAndMe(root, a, *baseURL, *timeout)

	a.connect(root)
	b.connect(root)
	a.mustReadUntil(v1.TypeConnected, *timeout)
	b.mustReadUntil(v1.TypeConnected, *timeout)
	if *verbose {
		fmt.Printf("connected: A=%s B=%s org=%s\n", a.user.ID, b.user.ID, a.user.OrgID)
	}

	a.mustSend(root, v1.Message{Type: v1.TypePing}, *timeout)
	a.mustReadUntil(v1.TypePong, *timeout)

	payload := json.RawMessage(fmt.Sprintf(`{"machine":"press-7","oee":0.81,"at":%d}`, time.Now().Unix()))
	a.mustSend(root, v1.Message{Type: v1.TypeBroadcast, Data: payload}, *timeout)
	for _, p := range []*peer{a, b} {
		got := p.mustReadUntil(v1.TypeBroadcast, *timeout)
		if got.From != a.user.ID {
			fatalf("broadcast from mismatch (%s): got=%q want=%q", p.name, got.From, a.user.ID)
		}
		if !jsonEqual(got.Data, payload) {
			fatalf("broadcast data mismatch (%s): got=%s want=%s", p.name, got.Data, payload)
		}
	}

	mustInvalidFrameKeepsSocket(root, a, *baseURL, *origin, *timeout)

	ctx, stop := context.WithTimeout(root, *timeout)
	a.guard.Logout(ctx)
	b.guard.Logout(ctx)
	stop()
	for _, p := range []*peer{a, b} {
		p.mustStop(*timeout)
	}

	ctx, stop = context.WithTimeout(root, *timeout)
	defer stop()
	if _, err := a.guard.Refresh(ctx); !sessionguard.IsUnauthorized(err) {
		fatalf("refresh after logout should be 401, got %v", err)
	}

	fmt.Printf("OK: A=%s B=%s org=%s\n", a.user.ID, b.user.ID, a.user.OrgID)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func wsEndpoint(base, token string) string {
	u, _ := url.Parse(base)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

func dialRaw(parent context.Context, base, origin, token string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	conn, resp, err := websocket.Dial(ctx, wsEndpoint(base, token), &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("dial: %v", err)
	}
	return conn
}

func mustRejectHandshake(parent context.Context, base, origin, token string, want websocket.StatusCode, stepTimeout time.Duration) {
	conn := dialRaw(parent, base, origin, token, stepTimeout)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != want {
		fatalf("token=%q: close code got=%d want=%d (err=%v)", token, got, want, err)
	}
}

func mustLogin(parent context.Context, log *slog.Logger, name, base, origin, email, pass string, stepTimeout time.Duration) *peer {
	g, err := sessionguard.New(base, sessionguard.WithLogger(log.With("peer", name)), sessionguard.WithOrigin(origin))
	if err != nil {
		fatalf("guard %s: %v", name, err)
	}

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, err := g.Login(ctx, email, pass)
	if err != nil {
		fatalf("login %s (%s): %v", name, email, err)
	}
	return &peer{
		name:  name,
		guard: g,
		user:  u,
		inbox: make(chan v1.Message, 64),
		done:  make(chan error, 1),
	}
}

func mustRefreshAndMe(parent context.Context, p *peer, base string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if _, err := p.guard.Refresh(ctx); err != nil {
		fatalf("refresh (%s): %v", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/auth/me", nil)
	if err != nil {
		fatalf("me request: %v", err)
	}
	resp, err := p.guard.Do(ctx, req)
	if err != nil {
		fatalf("me (%s): %v", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		fatalf("me (%s): status=%d body=%s", p.name, resp.StatusCode, body)
	}
	var out struct {
		User sessionguard.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fatalf("me (%s): decode: %v", p.name, err)
	}
	if out.User.ID != p.user.ID {
		fatalf("me (%s): id got=%q want=%q", p.name, out.User.ID, p.user.ID)
	}
}

func mustInvalidFrameKeepsSocket(parent context.Context, p *peer, base, origin string, stepTimeout time.Duration) {
	conn := dialRaw(parent, base, origin, p.guard.AccessToken(), stepTimeout)
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	readType := func(want string) v1.Message {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				fatalf("raw read waiting for %q: %v", want, err)
			}
			m, err := v1.Decode(data)
			if err != nil {
				fatalf("raw decode: %v", err)
			}
			if m.Type == want {
				return m
			}
		}
	}

	readType(v1.TypeConnected)
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		fatalf("raw write: %v", err)
	}
	if m := readType(v1.TypeError); m.Message != v1.ErrMsgInvalidFormat {
		fatalf("invalid frame: message got=%q want=%q", m.Message, v1.ErrMsgInvalidFormat)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		fatalf("raw write: %v", err)
	}
	readType(v1.TypePong)
}

func (p *peer) connect(ctx context.Context) {
	go func() {
		p.done <- p.guard.Connect(ctx, func(m v1.Message) {
			select {
			case p.inbox <- m:
			default:
				fatalf("inbox overflow (%s): consumer too slow", p.name)
			}
		})
	}()
}

func (p *peer) mustSend(parent context.Context, m v1.Message, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := p.guard.Send(ctx, m); err != nil {
		fatalf("send %s (%s): %v", m.Type, p.name, err)
	}
}

func (p *peer) mustReadUntil(want string, stepTimeout time.Duration) v1.Message {
	timer := time.NewTimer(stepTimeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			fatalf("timeout waiting for %q (%s)", want, p.name)
		case err := <-p.done:
			fatalf("connection ended while waiting for %q (%s): %v", want, p.name, err)
		case m := <-p.inbox:
			if m.Type == want {
				return m
			}
			if m.Type == v1.TypeError {
				fatalf("server error (%s): %q", p.name, m.Message)
			}
		}
	}
}

func (p *peer) mustStop(stepTimeout time.Duration) {
	select {
	case err := <-p.done:
		if err != nil {
			fatalf("connect (%s) ended with error: %v", p.name, err)
		}
	case <-time.After(stepTimeout):
		fatalf("connect (%s) did not stop after logout", p.name)
	}
}

func jsonEqual(a, b json.RawMessage) bool {
	var x, y any
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	xa, _ := json.Marshal(x)
	ya, _ := json.Marshal(y)
	return string(xa) == string(ya)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
