// Package limiters provides domain-specific rate limiters built on a shared
// Redis fixed-window counter.
//
// # Limiters
//
//   - [LoginLimiter] — per-email + per-IP throttle for password attempts.
//   - [SecondFactorLimiter] — per-user throttle for TOTP and backup code attempts.
//   - [ResetLimiter] — per-email + per-IP throttle for password reset requests.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace. Policy thresholds come from
// Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Make policy decisions beyond counting — flow functions decide consequences.
package limiters
