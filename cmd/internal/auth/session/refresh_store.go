package session

import (
	"context"
	"time"
)

// RefreshStore records the live refresh tokens of each principal.
//
// Every mutation for one principal is serialized with every other mutation for the same
// principal; different principals proceed independently. Expired entries are never
// reported live and are removed opportunistically.
type RefreshStore interface {
	// Add records token as live until expiresAt. Adding the same token twice is harmless.
	Add(ctx context.Context, principalID, token string, expiresAt time.Time) error

	// Remove forgets token. Removing an absent token is not an error.
	Remove(ctx context.Context, principalID, token string) error

	// Contains reports whether token is live at now. Expired entries are pruned first.
	Contains(ctx context.Context, principalID, token string, now time.Time) (bool, error)

	// Prune removes entries expired at now and returns how many were removed.
	Prune(ctx context.Context, principalID string, now time.Time) (int, error)

	// Rotate atomically replaces oldToken with newToken. If oldToken is not live at now,
	// nothing is written and ErrRefreshNotLive is returned. Of N concurrent rotations of
	// the same token, exactly one succeeds.
	Rotate(ctx context.Context, principalID, oldToken, newToken string, newExpiresAt, now time.Time) error
}
