package auth

import (
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/teamspace/backend/pkg/apperr"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

// PasswordCost is the bcrypt work factor.
var PasswordCost = bcrypt.DefaultCost

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", apperr.Internal("hash password", err)
	}
	return string(bytes), nil
}

// CheckPassword compares plain with hashed. A nil hash still costs one bcrypt
// comparison so unknown and password-less accounts take as long as real ones.
func CheckPassword(plain string, hashed *string) bool {
	if hashed == nil || *hashed == "" {
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("timing-equalizer-not-a-password"), PasswordCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*hashed), []byte(plain)) == nil
}

// ValidatePassword enforces length limits.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.BadRequest("password must be at least 8 characters")
	}
	if len(password) > maxPasswordLength {
		return apperr.BadRequest("password must be at most 72 bytes")
	}
	return nil
}

// NormalizeEmail trims and lowercases an address and performs a minimal shape check.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "", apperr.BadRequest("invalid email address")
	}
	return email, nil
}
