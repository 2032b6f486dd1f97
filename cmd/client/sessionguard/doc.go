// Package sessionguard is a Go client for the predixa auth API and realtime gateway.
//
// A Guard keeps the access token in memory only; the refresh token lives in the HTTP
// client's cookie jar and is sent by the jar to /auth/refresh and /auth/logout.
//
// Refresh calls are coalesced: concurrent callers share one in-flight POST /auth/refresh.
// Refresh tokens are single-use, so a second concurrent call would otherwise be
// rejected as a replay and log the user out.
//
// When an authenticated request is rejected and the shared refresh also fails, the Guard
// clears its state and closes the channel returned by LogoutSignal. Connect keeps a
// websocket open while the Guard is authenticated and reconnects after a fixed backoff.
package sessionguard
