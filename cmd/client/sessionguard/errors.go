package sessionguard

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a session and there is none.
	ErrNotAuthenticated = errors.New("sessionguard: not authenticated")

	// ErrSessionExpired is returned by Do when a 401 could not be recovered by refreshing.
	ErrSessionExpired = errors.New("sessionguard: session expired")

	// ErrNotConnected is returned by Send when no websocket is open.
	ErrNotConnected = errors.New("sessionguard: not connected")
)

// APIError is a non-2xx response from the auth API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("sessionguard: http %d", e.Status)
	}
	return fmt.Sprintf("sessionguard: http %d %s: %s", e.Status, e.Code, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == 401
}
