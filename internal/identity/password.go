package identity

import (
	"github.com/autoseers/carseer/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced on registration.
const MinPasswordLength = 8

// HashPassword returns a bcrypt hash of plain using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	if len(plain) < MinPasswordLength {
		return "", apperr.Invalid("password must be at least %d characters", MinPasswordLength)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a bcrypt hash with a plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
