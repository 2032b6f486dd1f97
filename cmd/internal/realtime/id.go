package realtime

import (
	"time"

	"predixa/cmd/identity/ids"
)

// NewClientID returns a ULID identifying one websocket connection in logs and rooms.
func NewClientID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
