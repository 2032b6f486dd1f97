package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"predixa/cmd/identity"
	"predixa/cmd/internal/auth/session"
)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
	throttle *ipThrottle
	now      func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides time.Now for cookie lifetimes and throttling.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, sessions *session.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	if cfg.RateRequests > 0 && cfg.RateWindow > 0 {
		h.throttle = newIPThrottle(cfg.RateRequests, cfg.RateWindow, h.now)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.Handle("/auth/register", h.throttled(h.handleRegister))
	mux.Handle("/auth/login", h.throttled(h.handleLogin))
	mux.Handle("/auth/refresh", h.throttled(h.handleRefresh))
	mux.Handle("/auth/logout", h.throttled(h.handleLogout))
	mux.Handle("/auth/me", h.throttled(h.handleMe))
}

func (h *Handler) throttled(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.throttle != nil {
			ip := clientIP(r, h.cfg.TrustProxy)
			if ip != nil {
				if ok, retryAfter := h.throttle.allow(ip.String()); !ok {
					h.auditRateLimited(r.Context(), ip, r.UserAgent(), r.URL.Path, retryAfter)
					writeRateLimited(w, retryAfter)
					return
				}
			}
		}
		next(w, r)
	})
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if details := validateRegister(req); len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()

	issued, err := h.sessions.Register(ctx, session.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email_taken", "email already registered")
		case identity.IsInvalidInput(err):
			writeValidationError(w, map[string]string{"password": invalidInputMessage(err)})
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "registration failed")
		}
		return
	}

	h.auditRegistered(ctx, issued.User.ID, ip, ua)
	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp, h.now())
	writeJSON(w, http.StatusCreated, sessionResponse{
		User:        toUserResponse(issued.User),
		AccessToken: issued.AccessToken,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if details := validateLogin(req); len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()
	email := identity.NormalizeEmail(req.Email)

	issued, err := h.sessions.Login(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.auditLoginFailed(ctx, ip, ua, email, "invalid_credentials")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "login failed")
		return
	}

	h.auditLoginSuccess(ctx, issued.User.ID, ip, ua)
	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp, h.now())
	writeJSON(w, http.StatusOK, sessionResponse{
		User:        toUserResponse(issued.User),
		AccessToken: issued.AccessToken,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()

	issued, err := h.sessions.Refresh(ctx, refreshTokenFromCookie(r))
	if err != nil {
		var replay session.RefreshReplayError
		switch {
		case errors.Is(err, session.ErrUnauthenticated):
			h.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no refresh token")
		case errors.As(err, &replay):
			h.auditRefreshReplay(ctx, replay.PrincipalID, ip, ua)
			h.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token")
		case errors.Is(err, session.ErrInvalidRefreshToken):
			h.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			h.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token")
		}
		return
	}

	h.auditRefreshSuccess(ctx, issued.User.ID, ip, ua)
	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp, h.now())
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: issued.AccessToken})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.sessions.Logout(r.Context(), refreshTokenFromCookie(r))
	h.auditLogout(r.Context(), clientIP(r, h.cfg.TrustProxy), r.UserAgent())

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, logoutResponse{Message: "Logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.sessions.Me(r.Context(), claims.Subject)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := h.sessions.Authenticate(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
		return session.AccessClaims{}, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func invalidInputMessage(err error) string {
	var op identity.OpError
	if errors.As(err, &op) && op.Msg != "" {
		return op.Msg
	}
	return "invalid"
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
