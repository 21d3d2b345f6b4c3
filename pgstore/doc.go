// Package pgstore implements the medauth.AccountStore interface on
// PostgreSQL.
//
// Uniqueness of (role, email), (role, username) and public_id is enforced
// by database constraints, not application checks; a constraint violation
// on insert surfaces as [medauth.ErrUserExists]. Schema management is
// embedded: [NewMigrator] applies the packaged migrations.
//
// # What this package must NOT do
//
//   - Decide promotion or verification policy (Engine owns the state
//     machine; this package only persists accounts).
//   - Talk to Redis.
package pgstore
