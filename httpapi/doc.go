// Package httpapi exposes the credential-lifecycle engine over HTTP.
//
// The router translates HTTP semantics into engine calls and back:
// request decoding, cookie handling, and the error-class to status-code
// mapping live here, while every security decision is delegated to the
// engine. Tokens travel as httpOnly, Secure, SameSite=Strict cookies;
// the refresh cookie is path-scoped so browsers only present it to the
// refresh and logout endpoints.
package httpapi
