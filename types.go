package medauth

import (
	"context"
	"time"
)

// Role partitions the principal namespace. Uniqueness of usernames is
// scoped per role; emails are unique per role as well.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// IDPrefix returns the public identifier prefix for the role.
func (r Role) IDPrefix() string {
	if r == RoleDoctor {
		return "DOC"
	}
	return "PAT"
}

// OTPPurpose names the flow a one-time code belongs to. Codes issued for
// one purpose never satisfy checks for another.
type OTPPurpose string

const (
	PurposeVerification  OTPPurpose = "verification"
	PurposePasswordReset OTPPurpose = "password_reset"
)

// PatientProfile carries the fields only patients have.
type PatientProfile struct {
	IsPregnant bool
}

// DoctorProfile carries the fields only doctors have.
type DoctorProfile struct {
	Specialization string
}

// IdentityDraft is a registration parked in Redis awaiting email
// verification. The password is already hashed; plaintext never leaves the
// Register call. At most one of Patient/Doctor is set, matching Role.
type IdentityDraft struct {
	PublicID     string
	Role         Role
	Email        string
	Username     string
	FullName     string
	Mobile       string
	PasswordHash string

	Patient *PatientProfile
	Doctor  *DoctorProfile

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Account is a durable, verified principal. At most one of Patient/Doctor
// is set, matching Role.
type Account struct {
	PublicID     string
	Role         Role
	Email        string
	Username     string
	FullName     string
	Mobile       string
	PasswordHash string

	Patient *PatientProfile
	Doctor  *DoctorProfile

	CreatedAt  time.Time
	VerifiedAt time.Time
}

// AccountStore persists verified accounts. Implementations must enforce
// uniqueness of (role, email), (role, username) and public_id at the
// storage layer and surface collisions as ErrUserExists.
type AccountStore interface {
	// Create inserts a new account. A uniqueness collision returns
	// ErrUserExists; the caller treats a public_id collision during
	// promotion as ErrAlreadyVerified.
	Create(ctx context.Context, a *Account) error

	// ByEmail returns the account with the given email in the given role,
	// or ErrUserNotFound.
	ByEmail(ctx context.Context, role Role, email string) (*Account, error)

	// ByIdentifier resolves username, email or public ID. A public ID
	// match wins over email, email over username; within a match kind
	// patients resolve before doctors. Returns ErrUserNotFound on a miss.
	ByIdentifier(ctx context.Context, identifier string) (*Account, error)

	// ByPublicID returns the account with the given public ID, or
	// ErrUserNotFound.
	ByPublicID(ctx context.Context, publicID string) (*Account, error)

	// UpdatePassword replaces the password hash of the account with the
	// given public ID. Returns ErrUserNotFound if no row matches.
	UpdatePassword(ctx context.Context, publicID, passwordHash string) error
}

// Mailer delivers one-time codes. Implementations should not retry
// internally; the engine treats delivery failure as non-fatal.
type Mailer interface {
	SendOTP(ctx context.Context, to string, purpose OTPPurpose, code string, ttl time.Duration) error
}

// RegisterInput carries a registration request. The profile matching Role
// may be set; a profile for the other role fails validation.
type RegisterInput struct {
	Role     Role
	Email    string
	Username string
	FullName string
	Mobile   string
	Password string

	Patient *PatientProfile
	Doctor  *DoctorProfile
}

// RegisterResult reports a parked draft. MailError is non-nil iff the OTP
// email could not be sent; the draft is still live and the code can be
// resent.
type RegisterResult struct {
	PublicID  string
	Email     string
	ExpiresAt time.Time
	MailError error
}

// VerifyResult reports a successful promotion.
type VerifyResult struct {
	Account *Account
}

// LoginResult carries the issued token and its session.
type LoginResult struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
	Account   *Account
}

// TokenInfo is the decoded, session-checked view of a live token.
type TokenInfo struct {
	PublicID  string
	Role      Role
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
