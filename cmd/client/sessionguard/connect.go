package sessionguard

import (
	"context"
	"net/url"
	"time"

	v1 "predixa/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

// Handler receives every frame read from the gateway.
type Handler func(v1.Message)

// Connect keeps a websocket to /ws open while the guard is authenticated and passes
// every inbound frame to h. After a drop it waits the reconnect backoff and dials again.
// A 4002 close refreshes the access token before the next attempt; if that refresh
// fails the session is force-ended.
//
// Connect returns ErrNotAuthenticated if called without a session, nil once the session
// ends, and ctx.Err() when ctx is done.
func (g *Guard) Connect(ctx context.Context, h Handler) error {
	if !g.Authenticated() {
		return ErrNotAuthenticated
	}

	for attempt := 1; ; attempt++ {
		err := g.connectOnce(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		code := websocket.CloseStatus(err)
		g.log.Info("sessionguard.ws.closed", "attempt", attempt, "code", int(code), "err", err)

		switch code {
		case v1.CloseInvalidToken:
			if _, rerr := g.Refresh(ctx); rerr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				g.forceLogout()
				return nil
			}
		case v1.CloseNoToken:
			g.forceLogout()
			return nil
		}

		if !g.Authenticated() {
			return nil
		}

		t := time.NewTimer(g.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-g.LogoutSignal():
			t.Stop()
			return nil
		case <-t.C:
		}

		if !g.Authenticated() {
			return nil
		}
	}
}

// Send writes m on the current websocket.
func (g *Guard) Send(ctx context.Context, m v1.Message) error {
	g.mu.RLock()
	conn := g.conn
	g.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	b, err := v1.Encode(m)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func (g *Guard) connectOnce(ctx context.Context, h Handler) error {
	tok := g.AccessToken()
	if tok == "" {
		return ErrNotAuthenticated
	}

	// Dial refuses clients with Timeout set; ctx bounds the handshake instead.
	hc := *g.client
	hc.Timeout = 0
	opts := &websocket.DialOptions{HTTPClient: &hc}
	if g.origin != "" {
		opts.HTTPHeader = map[string][]string{"Origin": {g.origin}}
	}

	conn, _, err := websocket.Dial(ctx, g.wsURL(tok), opts)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.conn == conn {
			g.conn = nil
		}
		g.mu.Unlock()
		_ = conn.CloseNow()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		m, err := v1.Decode(data)
		if err != nil {
			g.log.Info("sessionguard.ws.bad_frame", "err", err)
			continue
		}
		if h != nil {
			h(m)
		}
	}
}

func (g *Guard) wsURL(tok string) string {
	u := *g.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {tok}}.Encode()
	return u.String()
}

