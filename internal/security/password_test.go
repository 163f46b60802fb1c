package security

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Sup3rSecret!")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if hash == "Sup3rSecret!" {
		t.Fatalf("expected hash to differ from plaintext")
	}
	if !VerifyPassword("Sup3rSecret!", hash) {
		t.Fatalf("expected correct password to verify")
	}
	if VerifyPassword("WrongSecret1!", hash) {
		t.Fatalf("expected wrong password to fail")
	}
}

func TestHashAndVerifyPassword_LongPassword(t *testing.T) {
	// Policy-valid but past bcrypt's 72-byte input limit.
	password := strings.Repeat("Abcdef1!", 13)
	if reasons := CheckPasswordStrength(password); len(reasons) != 0 {
		t.Fatalf("expected policy-valid password, got %v", reasons)
	}

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !VerifyPassword(password, hash) {
		t.Fatalf("expected long password to verify")
	}
	// Only the first 72 bytes are keyed.
	if !VerifyPassword(password[:72], hash) {
		t.Fatalf("expected 72-byte prefix to verify")
	}
	if VerifyPassword("Abcdef1!", hash) {
		t.Fatalf("expected unrelated password to fail")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	if VerifyPassword("anything", "not-a-bcrypt-hash") {
		t.Fatalf("expected malformed hash to fail verification")
	}
}

func TestCheckPasswordStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		reasons  []string
	}{
		{
			name:     "valid",
			password: "Abcdef1!",
			reasons:  nil,
		},
		{
			name:     "short lowercase only",
			password: "short",
			reasons: []string{
				"Password must be at least 8 characters long",
				"Password must contain at least one number",
				"Password must contain at least one uppercase letter",
				"Password must contain at least one special character",
			},
		},
		{
			name:     "no digit no special",
			password: "Abcdefgh",
			reasons: []string{
				"Password must contain at least one number",
				"Password must contain at least one special character",
			},
		},
		{
			name:     "no lowercase",
			password: "ABCDEF1!",
			reasons: []string{
				"Password must contain at least one lowercase letter",
			},
		},
		{
			name:     "too long",
			password: strings.Repeat("Abcdef1!", 17),
			reasons: []string{
				"Password must be less than 128 characters long",
			},
		},
		{
			// 124 characters but 244 bytes; the limits count characters.
			name:     "multibyte within character limit",
			password: strings.Repeat("ñ", 120) + "Aa1!",
			reasons:  nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CheckPasswordStrength(tc.password)
			if len(got) != len(tc.reasons) {
				t.Fatalf("expected %d reasons, got %d: %v", len(tc.reasons), len(got), got)
			}
			for i := range got {
				if got[i] != tc.reasons[i] {
					t.Fatalf("reason %d: expected %q, got %q", i, tc.reasons[i], got[i])
				}
			}
		})
	}
}
