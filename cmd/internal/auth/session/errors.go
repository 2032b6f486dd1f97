package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned when a token fails signature, shape, issuer, or expiry checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidRefreshToken is returned by Refresh for any refresh token that cannot be rotated.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidCredentials is the only login failure; it never says which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated is returned when no token was presented at all.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrEmailTaken is returned by Register when the email already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrRefreshNotLive is returned by RefreshStore.Rotate when the presented token is
	// not in the principal's set (already rotated, revoked, expired, or never stored).
	ErrRefreshNotLive = errors.New("refresh token not live")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// RefreshReplayError reports a refresh token that verified cryptographically but was not
// live in the store: the signature of a replayed, previously rotated token.
type RefreshReplayError struct {
	PrincipalID string
}

func (e RefreshReplayError) Error() string {
	return fmt.Sprintf("%s: not live for principal %s", ErrInvalidRefreshToken.Error(), e.PrincipalID)
}

func (e RefreshReplayError) Unwrap() error { return ErrInvalidRefreshToken }

// IsReplay reports whether err is a RefreshReplayError.
func IsReplay(err error) bool {
	var re RefreshReplayError
	return errors.As(err, &re)
}
