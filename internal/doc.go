// Package internal contains helper utilities that are intentionally private to medauth,
// including secure random generation for codes, identifiers, and session IDs.
//
// # Sub-packages
//
//   - flows: pure-function flow orchestrators for every Engine operation
//   - rate: core Redis-backed rate limit primitives
//   - stores: Redis stores for one-time codes and pending registration drafts
//
// # What this package must NOT do
//
//   - Export types that appear in the public medauth API.
//   - Be imported by any package outside the medauth module.
package internal
