package identity

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hides the hashing algorithm behind an interface so tests
// can swap in a cheap stub.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: 12}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("identity: hash password: %w", err)
	}
	return string(bytes), nil
}

func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// ValidatePasswordPolicy enforces spec.md's minimum password strength
// rule: at least 10 characters, with a mix of letter case and a digit or
// symbol.
func ValidatePasswordPolicy(password string) error {
	if len(password) < 10 {
		return fmt.Errorf("password must be at least 10 characters")
	}

	var hasUpper, hasLower, hasDigitOrSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasDigitOrSymbol = true
		}
	}

	if !hasUpper || !hasLower || !hasDigitOrSymbol {
		return fmt.Errorf("password must mix upper and lower case letters with a digit or symbol")
	}
	return nil
}
