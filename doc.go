// Package medauth implements the account and session engine for a medical
// authentication service with two principal roles, patients and doctors.
//
// The Engine owns the full identity lifecycle:
//
//   - Registration: credentials are validated, hashed and parked as a
//     pending draft in Redis. No account row exists yet.
//   - Verification: a one-time code sent by email promotes the draft into
//     a durable account exactly once.
//   - Sessions: login issues a Redis-backed session plus a signed JWT;
//     every token check requires the live session record, so revocation
//     is immediate.
//   - Password reset: a second OTP purpose drives the forgot/reset flow
//     and revokes every open session on success.
//
// Construct an Engine with the Builder:
//
//	eng, err := medauth.New().
//		WithRedis(rdb).
//		WithAccountStore(store).
//		WithMailer(mail).
//		WithJWTSecret(secret).
//		Build(ctx)
//
// All blocking operations take a context.Context and return a typed error
// from the closed set in errors.go. Callers branch with errors.Is.
//
// What this package must NOT do:
//
//   - Serve HTTP. Transport lives in cmd/medauthd; the Engine is a library.
//   - Talk SQL directly. Durable accounts go through the AccountStore
//     interface; pgstore provides the PostgreSQL implementation.
//   - Render or localize email bodies beyond the minimal OTP template.
package medauth
