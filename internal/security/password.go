package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is the work factor applied to stored credentials.
const bcryptCost = 12

// bcryptMaxBytes is bcrypt's input limit. The password policy admits up to
// 128 characters, so longer inputs are truncated on both hash and verify;
// x/crypto would otherwise reject them outright.
const bcryptMaxBytes = 72

// passwordSymbols is the punctuation set accepted as special characters.
const passwordSymbols = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, errHash := bcrypt.GenerateFromPassword(bcryptInput(password), bcryptCost)
	if errHash != nil {
		return "", fmt.Errorf("security: hash password: %w", errHash)
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext matches the stored hash.
// A malformed hash counts as a mismatch.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password)) == nil
}

// bcryptInput truncates the password to bcrypt's 72-byte limit.
func bcryptInput(password string) []byte {
	raw := []byte(password)
	if len(raw) > bcryptMaxBytes {
		raw = raw[:bcryptMaxBytes]
	}
	return raw
}

// CheckPasswordStrength returns the list of violated policy rules, empty when
// the password satisfies all of them.
func CheckPasswordStrength(password string) []string {
	var reasons []string

	length := utf8.RuneCountInString(password)
	if length < 8 {
		reasons = append(reasons, "Password must be at least 8 characters long")
	}
	if length > 128 {
		reasons = append(reasons, "Password must be less than 128 characters long")
	}

	var hasDigit, hasUpper, hasLower, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
		if strings.ContainsRune(passwordSymbols, r) {
			hasSymbol = true
		}
	}

	if !hasDigit {
		reasons = append(reasons, "Password must contain at least one number")
	}
	if !hasUpper {
		reasons = append(reasons, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		reasons = append(reasons, "Password must contain at least one lowercase letter")
	}
	if !hasSymbol {
		reasons = append(reasons, "Password must contain at least one special character")
	}
	return reasons
}
