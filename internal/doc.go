// Package internal contains helpers private to the credential engine:
// opaque-token encoding, secure random generation, backup-code formatting
// and coarse device typing.
//
// # Sub-packages
//
//   - limiters — Redis-backed fixed-window rate limiters per concern
//   - stores — short-lived Redis state (pending-2FA challenges, WebAuthn ceremonies)
//
// Nothing in this tree is importable from outside the module, and nothing
// here may export types that appear on the public API surface.
package internal
