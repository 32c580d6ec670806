// Package praxis is an identity-provider credential-lifecycle core: it
// authenticates end users, issues and rotates session credentials, and
// mediates step-up verification (TOTP, backup codes, WebAuthn) before a
// session is granted or maintained.
//
// The package is built for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// praxis is the public surface. It exposes [Engine], [Builder],
// [Config], the Store contract, and value types (TokenPair,
// LoginResult, SessionInfo, and friends). Persistence lives in the
// store package on Postgres; short-lived challenge state, ceremony
// sessions, and rate-limit windows live in Redis under internal/.
//
// # Security contract
//
// Refresh tokens rotate on every use and form chains; presenting an
// already rotated token revokes every session of the user. Second
// factors are single-use: a consumed login challenge, backup code, or
// WebAuthn ceremony cannot be replayed, and TOTP codes are rejected at
// or below the last accepted time step. Failure responses are coarse so
// they cannot be used to enumerate accounts or enrolled factors.
package praxis
