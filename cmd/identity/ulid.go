package identity

import (
	"time"

	"predixa/cmd/identity/ids"
)

// NewULID returns a new ULID (26-char string) used as principal id.
func NewULID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
