// Package session provides Redis-backed session persistence and compact binary session
// encoding for authentication hot paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact binary format with a leading
// schema version byte. The encoder is append-only: new versions add fields
// but never reinterpret old ones. The trailing timestamps sit at fixed
// offsets from the end so server-side Lua can patch lastActivity without
// decoding the whole record.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It does NOT
// interpret JWT tokens or enforce authentication policy; those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import medauth or jwt (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store plaintext secrets in [Session] fields.
package session
