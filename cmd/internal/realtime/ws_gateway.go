package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"predixa/cmd/internal/auth/session"
	v1 "predixa/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	// Offered when the client asks for it; never required.
	wsSubprotocolV1 = "predixa.realtime.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	wsDefaultOriginRequired = false
	wsDefaultAllowedOrigins = "http://localhost:3000,http://127.0.0.1:3000"

	wsErrRateLimited = "Too many messages"
)

// Authenticator verifies the access token presented on the upgrade URL.
// *session.Service satisfies it.
type Authenticator interface {
	Authenticate(token string) (session.AccessClaims, error)
}

// WSGateway is the websocket entrypoint.
//
// It enforces origin policy, authenticates the ?token= query parameter, joins the
// principal's organization room and serves ping, broadcast and echo frames.
type WSGateway struct {
	log     *slog.Logger
	hub     *Hub
	auth    Authenticator
	metrics *Metrics
	now     func() time.Time

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// websocket.Accept authorizes same-host origins itself; cross-origin hosts need patterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// GatewayOption configures a WSGateway.
type GatewayOption func(*WSGateway)

// WithGatewayMetrics records connection metrics into m.
func WithGatewayMetrics(m *Metrics) GatewayOption {
	return func(g *WSGateway) { g.metrics = m }
}

// NewWSGateway constructs a gateway; limits and origin policy come from PREDIXA_WS_* env.
func NewWSGateway(log *slog.Logger, hub *Hub, auth Authenticator, opts ...GatewayOption) (*WSGateway, error) {
	if auth == nil {
		return nil, errors.New("realtime: nil authenticator")
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &WSGateway{
		log:  log,
		auth: auth,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if hub == nil {
		hub = NewHub(log, g.metrics)
	}
	g.hub = hub

	// TLS verification knob for local tooling; it is not an origin policy.
	g.devInsecure = envBoolWS("PREDIXA_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("PREDIXA_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("PREDIXA_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("PREDIXA_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	// Zero disables the idle deadline; dead peers are found by the heartbeat.
	g.readIdleTimeout = envDurationWS("PREDIXA_WS_READ_IDLE_TIMEOUT", 0)

	g.sendQueueSize = envIntWS("PREDIXA_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("PREDIXA_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("PREDIXA_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("PREDIXA_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("PREDIXA_WS_RATE_WINDOW", rateLimitWindow)

	return g, nil
}

// Hub returns the hub connections are joined to.
func (g *WSGateway) Hub() *Hub { return g.hub }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request, authenticates it and runs the connection loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.metrics.reject("origin")
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}

	// Token failures are reported as close codes so browsers can tell them apart.
	if token == "" {
		g.metrics.reject("no_token")
		g.log.Info("ws.reject.no_token", "remote", r.RemoteAddr)
		_ = conn.Close(websocket.StatusCode(v1.CloseNoToken), v1.ReasonNoToken)
		return
	}
	claims, err := g.auth.Authenticate(token)
	if err != nil {
		g.metrics.reject("invalid_token")
		g.log.Info("ws.reject.invalid_token", "remote", r.RemoteAddr, "err", err)
		_ = conn.Close(websocket.StatusCode(v1.CloseInvalidToken), v1.ReasonInvalidToken)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	clientID, err := NewClientID(g.now())
	if err != nil {
		g.log.Error("ws.client_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	p := claims.Principal()
	client := NewClient(clientID, p.ID, p.OrgID, p.Role, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if !g.hub.Join(client.OrgID, client) {
		g.metrics.reject("shutting_down")
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	g.metrics.connOpened()
	g.log.Info("ws.connect", "client_id", clientID, "user_id", client.UserID, "org_id", client.OrgID,
		"room_members", g.hub.MemberCount(client.OrgID))

	var closeOnce sync.Once

	// shutdown is idempotent and never closes client.Send. Room removal happens
	// before client.Close so broadcasters never see a closing member.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Leave(client.OrgID, client.ID)
			client.Close()
			g.metrics.connClosed()
			_ = conn.Close(code, reason)
			cancel()
			g.log.Info("ws.disconnect", "client_id", clientID, "user_id", client.UserID, "code", int(code), "reason", reason)
		})
	}

	_ = g.enqueue(ctx, client, v1.Connected(client.UserID, client.OrgID))

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	write := func(m v1.Message) bool {
		if err := writeMessage(ctx, conn, m, g.writeTimeout); err != nil {
			g.log.Info("ws.write.fail", "client_id", clientID, "close_status", websocket.CloseStatus(err), "err", err)
			shutdown(websocket.StatusAbnormalClosure, "write failed")
			return false
		}
		return true
	}

	// Closing flushReq makes the writer send whatever is queued and exit.
	flushReq := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-flushReq:
				for {
					select {
					case m := <-client.Send:
						if !write(m) {
							return
						}
					default:
						return
					}
				}
			case m := <-client.Send:
				if !write(m) {
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// Closed from outside (hub shutdown); unblock the read loop.
				shutdown(websocket.StatusGoingAway, "server shutting down")
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "client_id", clientID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		data, err := g.readFrame(ctx, conn)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "client_id", clientID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !rl.Allow(g.now()) {
			g.metrics.reject("rate_limited")
			g.trySendError(ctx, client, wsErrRateLimited)
			close(flushReq)
			select {
			case <-writerDone:
			case <-time.After(wsCloseGrace):
			}
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		msg, err := v1.Decode(data)
		if err != nil {
			g.trySendError(ctx, client, v1.ErrMsgInvalidFormat)
			continue readLoop
		}

		switch msg.Type {
		case v1.TypePing:
			_ = g.enqueue(ctx, client, v1.Pong())

		case v1.TypeBroadcast:
			if client.OrgID == "" {
				g.trySendError(ctx, client, v1.ErrMsgNoRoom)
				continue readLoop
			}
			n := g.hub.Broadcast(client.OrgID, v1.Broadcast(client.UserID, msg.Data))
			g.log.Debug("ws.broadcast", "client_id", clientID, "org_id", client.OrgID, "delivered", n)

		default:
			_ = g.enqueue(ctx, client, v1.Echo(msg))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- send helpers ----

func (g *WSGateway) trySendError(ctx context.Context, client *Client, msg string) {
	_ = g.enqueue(ctx, client, v1.Error(msg))
}

func (g *WSGateway) enqueue(ctx context.Context, client *Client, m v1.Message) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	return client.trySend(m)
}

// ---- frame IO ----

func (g *WSGateway) readFrame(parent context.Context, conn *websocket.Conn) ([]byte, error) {
	ctx := parent
	if g.readIdleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, g.readIdleTimeout)
		defer cancel()
	}

	mt, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return nil, fmt.Errorf("unsupported message type: %v", mt)
	}
	return data, nil
}

func writeMessage(parent context.Context, conn *websocket.Conn, m v1.Message, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := v1.Encode(m)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		if a == "*" {
			return nil
		}
		if strings.EqualFold(origin, a) {
			return nil
		}
		// Host match ignores scheme and port.
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins returns the allowlist hosts as
// websocket.Accept OriginPatterns, sorted and deduplicated.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
