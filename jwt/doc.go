// Package jwt issues and verifies the short-lived access tokens that
// accompany a refresh-token chain. Tokens carry the user and session ids
// and are validated strictly: pinned algorithm, required expiry, optional
// issuer/audience matching and a bound on future iat claims.
package jwt
