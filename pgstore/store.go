package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medauth/medauth"
)

// db is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists verified accounts in PostgreSQL.
type Store struct {
	db db
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// NewStoreWithDB creates a Store over any query executor, mainly for
// tests.
func NewStoreWithDB(d db) *Store {
	return &Store{db: d}
}

const accountColumns = `public_id, role, email, username, full_name, mobile, is_pregnant, specialization, password_hash, created_at, verified_at`

// Create inserts a new account. Any uniqueness collision, including on
// public_id, reports medauth.ErrUserExists; the engine decides whether
// that means duplicate or already verified.
func (s *Store) Create(ctx context.Context, a *medauth.Account) error {
	var (
		isPregnant     *bool
		specialization *string
	)
	if a.Patient != nil {
		isPregnant = &a.Patient.IsPregnant
	}
	if a.Doctor != nil {
		specialization = &a.Doctor.Specialization
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (
			public_id, role, email, username, full_name,
			mobile, is_pregnant, specialization,
			password_hash, created_at, verified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		a.PublicID,
		string(a.Role),
		a.Email,
		a.Username,
		a.FullName,
		a.Mobile,
		isPregnant,
		specialization,
		a.PasswordHash,
		a.CreatedAt,
		a.VerifiedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", medauth.ErrUserExists, pgErr.ConstraintName)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// ByEmail returns the account with the given email in the given role.
func (s *Store) ByEmail(ctx context.Context, role medauth.Role, email string) (*medauth.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE role = $1 AND email = $2
	`, string(role), email)

	return scanAccount(row, "email lookup")
}

// ByIdentifier resolves a username, email or public ID in one query.
// A public ID match wins over an email match, which wins over a
// username match; within a match kind, patients resolve first.
func (s *Store) ByIdentifier(ctx context.Context, identifier string) (*medauth.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE username = $1 OR email = $1 OR public_id = $1
		ORDER BY
			CASE WHEN public_id = $1 THEN 0 WHEN email = $1 THEN 1 ELSE 2 END,
			CASE role WHEN 'patient' THEN 0 ELSE 1 END
		LIMIT 1
	`, identifier)

	return scanAccount(row, "identifier lookup")
}

// ByPublicID returns the account with the given public ID.
func (s *Store) ByPublicID(ctx context.Context, publicID string) (*medauth.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE public_id = $1
	`, publicID)

	return scanAccount(row, "public id lookup")
}

// UpdatePassword replaces the password hash of the account.
func (s *Store) UpdatePassword(ctx context.Context, publicID, passwordHash string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2
		WHERE public_id = $1
	`, publicID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return medauth.ErrUserNotFound
	}
	return nil
}

func scanAccount(row pgx.Row, op string) (*medauth.Account, error) {
	var (
		a              medauth.Account
		role           string
		isPregnant     *bool
		specialization *string
	)
	err := row.Scan(
		&a.PublicID,
		&role,
		&a.Email,
		&a.Username,
		&a.FullName,
		&a.Mobile,
		&isPregnant,
		&specialization,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.VerifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, medauth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.Role = medauth.Role(role)
	switch a.Role {
	case medauth.RolePatient:
		if isPregnant != nil {
			a.Patient = &medauth.PatientProfile{IsPregnant: *isPregnant}
		}
	case medauth.RoleDoctor:
		if specialization != nil {
			a.Doctor = &medauth.DoctorProfile{Specialization: *specialization}
		}
	}
	return &a, nil
}
