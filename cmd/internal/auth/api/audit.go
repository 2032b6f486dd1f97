package authapi

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Audit events are structured log records; the log pipeline is the audit sink.

func (h *Handler) auditLoginFailed(ctx context.Context, ip net.IP, ua, email, reason string) {
	h.audit(ctx, slog.LevelInfo, "auth.audit.login_failed", ip, ua,
		slog.String("email", email),
		slog.String("reason", reason),
	)
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, slog.LevelInfo, "auth.audit.login_success", ip, ua, slog.String("user_id", userID))
}

func (h *Handler) auditRegistered(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, slog.LevelInfo, "auth.audit.registered", ip, ua, slog.String("user_id", userID))
}

func (h *Handler) auditRateLimited(ctx context.Context, ip net.IP, ua, path string, retryAfter time.Duration) {
	h.audit(ctx, slog.LevelWarn, "auth.audit.rate_limited", ip, ua,
		slog.String("path", path),
		slog.Int64("retry_after_s", int64(retryAfter.Seconds())),
	)
}

func (h *Handler) auditRefreshSuccess(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, slog.LevelDebug, "auth.audit.refresh_success", ip, ua, slog.String("user_id", userID))
}

func (h *Handler) auditRefreshReplay(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, slog.LevelWarn, "auth.audit.refresh_replay", ip, ua, slog.String("user_id", userID))
}

func (h *Handler) auditLogout(ctx context.Context, ip net.IP, ua string) {
	h.audit(ctx, slog.LevelInfo, "auth.audit.logout", ip, ua)
}

func (h *Handler) audit(ctx context.Context, level slog.Level, action string, ip net.IP, ua string, attrs ...slog.Attr) {
	if h == nil || h.log == nil {
		return
	}

	base := make([]slog.Attr, 0, len(attrs)+2)
	if ip != nil {
		base = append(base, slog.String("ip", ip.String()))
	}
	if ua = strings.TrimSpace(ua); ua != "" {
		base = append(base, slog.String("user_agent", ua))
	}
	base = append(base, attrs...)

	h.log.LogAttrs(ctx, level, action, base...)
}
