// Package token hashes refresh tokens for server-side storage.
//
// Refresh tokens are signed credentials handed to the browser in a cookie. The server
// never stores them verbatim: the refresh-token stores keep only the digest produced here.
//
// Modes:
//   - SHA-256(token) when PREDIXA_TOKEN_HMAC_KEY is unset (development).
//   - HMAC-SHA256(token, key) when the key is set. Production deployments enforce this
//     with PREDIXA_REQUIRE_TOKEN_HMAC=true and a key of at least 32 bytes.
//
// Output is always a 64-char lowercase hex string.
package token
