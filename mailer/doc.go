// Package mailer provides medauth.Mailer implementations.
//
//   - [SMTP] delivers over implicit-TLS SMTP for production.
//   - [Log] logs the code instead of sending mail, for development.
//
// Mailers do not retry. The engine treats delivery failure as non-fatal
// and the caller can request a resend.
package mailer
