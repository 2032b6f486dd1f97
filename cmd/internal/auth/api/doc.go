// Package authapi exposes the session lifecycle over HTTP under /auth.
//
// The refresh token never appears in a response body. It travels only in the
// refreshToken cookie (HttpOnly, SameSite=Strict, Path=/auth); the access token is
// returned in the JSON body for header-based use.
package authapi
