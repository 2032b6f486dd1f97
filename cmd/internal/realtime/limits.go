package realtime

import "time"

const (
	// Max bytes per websocket frame read.
	maxFrameBytes = 64 << 10 // 64 KiB

	// Heartbeat defaults (PREDIXA_WS_HEARTBEAT_*).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection inbound frames per window (PREDIXA_WS_RATE_*).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
