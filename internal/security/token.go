package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/knowva/knowva-server/internal/config"
)

// ErrInvalidToken covers every access-token validation failure. Malformed,
// expired, bad-signature and wrong-issuer tokens are indistinguishable to
// callers.
var ErrInvalidToken = errors.New("invalid token")

// refreshTokenBytes is the entropy of an opaque refresh token before hex
// encoding.
const refreshTokenBytes = 48

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	SessionID string `json:"sessionId"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates access tokens and generates opaque refresh
// tokens. Configuration is injected once at construction.
type TokenIssuer struct {
	cfg config.JWTConfig
}

// NewTokenIssuer builds a TokenIssuer from JWT settings.
func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{cfg: cfg}
}

// AccessExpiry returns the configured access-token lifetime.
func (i *TokenIssuer) AccessExpiry() time.Duration {
	return i.cfg.AccessExpiry
}

// RefreshExpiry returns the configured refresh-token lifetime.
func (i *TokenIssuer) RefreshExpiry() time.Duration {
	return i.cfg.RefreshExpiry
}

// AccessToken signs an HS256 JWT for the user and session, issued at now.
func (i *TokenIssuer) AccessToken(userID, sessionID string, now time.Time) (string, error) {
	claims := AccessClaims{
		SessionID: sessionID,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.AccessExpiry)),
		},
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if errSign != nil {
		return "", fmt.Errorf("security: sign access token: %w", errSign)
	}
	return signed, nil
}

// RefreshToken returns a cryptographically random opaque token. It carries no
// claims; the database row is the source of truth.
func (i *TokenIssuer) RefreshToken() (string, error) {
	return GenerateRandomString(refreshTokenBytes)
}

// ParseAccessToken verifies signature, algorithm, issuer, audience and expiry.
func (i *TokenIssuer) ParseAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(i.cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithAudience(i.cfg.Audience),
	)
	if errParse != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExtractUserID returns the subject of a valid access token.
func (i *TokenIssuer) ExtractUserID(token string) (string, error) {
	claims, errParse := i.ParseAccessToken(token)
	if errParse != nil {
		return "", errParse
	}
	return claims.Subject, nil
}

// GenerateRandomString returns n random bytes hex encoded.
func GenerateRandomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("security: random: %w", errRead)
	}
	return hex.EncodeToString(buf), nil
}
