package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordNotConfigured means no admin password is set; login must fail closed.
var ErrPasswordNotConfigured = errors.New("admin password not configured")

// ErrInvalidPassword is returned on mismatch.
var ErrInvalidPassword = errors.New("invalid password")

// PasswordChecker compares login attempts against the shared admin password.
// The plain value is hashed once at startup and discarded.
type PasswordChecker struct {
	hash []byte
}

// NewPasswordChecker hashes plain. An empty plain yields a checker that always
// reports ErrPasswordNotConfigured.
func NewPasswordChecker(plain string) (*PasswordChecker, error) {
	if plain == "" {
		return &PasswordChecker{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &PasswordChecker{hash: hash}, nil
}

// Configured reports whether an admin password exists.
func (p *PasswordChecker) Configured() bool { return len(p.hash) > 0 }

// Check validates attempt.
func (p *PasswordChecker) Check(attempt string) error {
	if !p.Configured() {
		return ErrPasswordNotConfigured
	}
	if attempt == "" {
		return ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword(p.hash, []byte(attempt)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}
