package flows

import "time"

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Register      RegisterDeps
	Verify        VerifyDeps
	Login         LoginDeps
	Validate      ValidateDeps
	Logout        LogoutDeps
	PasswordReset PasswordResetDeps
}

// AccountRecord is the flow-local view of a durable account. The role
// variant is flattened: IsPregnant is non-nil only for patients that
// provided it, Specialization is non-empty only for doctors.
type AccountRecord struct {
	UserID       string
	Role         string
	Email        string
	Username     string
	FullName     string
	Mobile       string
	PasswordHash string

	IsPregnant     *bool
	Specialization string
}

// DraftRecord is the flow-local view of a pending registration. Role
// variant fields are flattened the same way as on AccountRecord.
type DraftRecord struct {
	UserID       string
	Role         string
	Email        string
	Username     string
	FullName     string
	Mobile       string
	PasswordHash string

	IsPregnant     *bool
	Specialization string

	CreatedAt time.Time
	ExpiresAt time.Time
}
