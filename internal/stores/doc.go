// Package stores provides Redis-backed, short-lived record stores for
// security-sensitive authentication flows: one-time codes and pending
// registration drafts.
//
// # Design
//
// Each store persists a record in Redis with a TTL. Mutation operations
// run as single Lua scripts, so consume-and-delete and reserve-uniqueness
// steps are atomic without client-side locking. Records are single-use:
// consumed or deleted on success, with attempt limits to resist
// brute-force attacks. Code comparisons use constant-time compare.
//
// Records carry their logical expiry inside the payload; the physical
// Redis TTL runs a grace window longer, so readers can tell an expired
// record from one that never existed.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// records. It does NOT generate codes or identifiers, enforce rate limits,
// or make authentication decisions; those responsibilities belong to the
// flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import medauth or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for code matching.
package stores
