// Package auth issues and verifies session tokens for para-sync.
//
// A session token is an HS256 JWT whose subject is the user id the sync
// layer binds to. The CLI mints tokens with "para-sync token" and resolves
// them before calling Initialize, so a user id is never taken from a flag
// when a token is configured.
package auth
