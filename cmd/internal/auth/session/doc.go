// Package session implements the predixa session lifecycle.
//
// Access tokens are short-lived HS256 JWTs signed with the access secret and verified
// statelessly. Refresh tokens are long-lived HS256 JWTs signed with a second, independent
// secret; each one is also recorded (hashed) in a per-principal RefreshStore and is single-use:
// a successful refresh rotates it out atomically and issues a replacement.
//
// Liveness of a refresh token is decided by store membership, not by its signature. A token
// that verifies but is absent from the store is treated as a replay of a rotated token.
//
// HTTP and WebSocket transport live in authapi and realtime.
package session
