// Package stores provides Redis-backed, short-lived record stores for
// security-sensitive authentication flows: pending-2FA login challenges and
// in-flight WebAuthn ceremonies.
//
// # Design
//
// Each store persists a record in Redis with a TTL. Records are single-use:
// consumed or deleted on success, and attempt-limited where guessing is
// possible. Mutation under contention uses WATCH/MULTI optimistic
// transactions with automatic retry. Because the records live in Redis and
// not process memory, any stateless instance behind a load balancer can
// finish a flow another instance began.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Log or expose plaintext secrets.
//   - Make authentication decisions; the Engine owns those.
package stores
