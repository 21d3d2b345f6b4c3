// Package middleware exposes HTTP adapters over medauth.Engine validation.
//
// # Guards
//
//   - [Guard] requires a valid bearer token backed by a live session.
//   - [RequireRole] is Guard plus a role check.
//
// Each guard reads the Authorization header, attaches the caller's IP and
// User-Agent to the request context, calls Engine.ValidateToken, and
// injects the token info into the request context for handlers.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject and the role check.
package middleware
