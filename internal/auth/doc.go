// Package auth attaches a verified user identity to inbound requests.
//
// The Gate middleware reads a single header carrying "<scheme> <token>",
// verifies the HMAC-signed token and stores the subject id in the request
// context. A missing header, a malformed value and a token that fails
// verification all leave the request without identity; the gate never
// rejects. Handlers that need an identity wrap themselves with Require.
package auth
