package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/knowva/knowva-server/internal/db"
	"github.com/knowva/knowva-server/internal/models"
)

const (
	// sessionTTL is how long a login session stays valid.
	sessionTTL = 7 * 24 * time.Hour
	// onlineWindow is the recency window for online presence.
	onlineWindow = 5 * time.Minute
)

// Store provides the session and refresh-token operations used inside the
// service's transactions. It holds no state; every method runs on the
// caller's transaction handle with the transaction's single clock reading.
type Store struct{}

// CreateSession records a login session and returns its session token, which
// doubles as the session id embedded in access tokens.
func (Store) CreateSession(tx *gorm.DB, userID string, ipAddress, userAgent *string, now time.Time) (string, error) {
	session := models.UserSession{
		UserID:       userID,
		SessionToken: uuid.NewString(),
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		IsActive:     true,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}
	if errCreate := tx.Create(&session).Error; errCreate != nil {
		return "", fmt.Errorf("auth: create session: %w", errCreate)
	}
	return session.SessionToken, nil
}

// RevokeAllRefreshTokens revokes every refresh token of the user. Called on
// login so a fresh sign-in invalidates older devices.
func (Store) RevokeAllRefreshTokens(tx *gorm.DB, userID string) error {
	errUpdate := tx.Model(&models.RefreshToken{}).
		Where("user_id = ?", userID).
		Update("is_revoked", true).Error
	if errUpdate != nil {
		return fmt.Errorf("auth: revoke refresh tokens: %w", errUpdate)
	}
	return nil
}

// StoreRefreshToken persists a newly issued refresh token.
func (Store) StoreRefreshToken(tx *gorm.DB, userID, token string, expiresAt time.Time) error {
	row := models.RefreshToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if errCreate := tx.Create(&row).Error; errCreate != nil {
		return fmt.Errorf("auth: store refresh token: %w", errCreate)
	}
	return nil
}

// FindUsableRefreshToken returns the refresh-token row when the token is
// unrevoked, unexpired and its owner is active; nil otherwise. Missing,
// revoked, expired and deactivated-owner lookups are indistinguishable. On
// PostgreSQL the row is locked so concurrent rotations of the same token
// resolve to a single winner.
func (Store) FindUsableRefreshToken(tx *gorm.DB, token string, now time.Time) (*models.RefreshToken, error) {
	query := tx.Model(&models.RefreshToken{}).
		Select("refresh_tokens.*").
		Joins("JOIN users ON users.id = refresh_tokens.user_id").
		Where("refresh_tokens.token = ?", token).
		Where("refresh_tokens.is_revoked = ?", false).
		Where("refresh_tokens.expires_at > ?", now).
		Where("users.is_active = ?", true)
	if !db.IsSQLite(tx) {
		// sqlite has no FOR UPDATE, so the in-memory test suite never takes
		// this branch; changes to the lock clause need a run against postgres.
		query = query.Clauses(clause.Locking{
			Strength: "UPDATE",
			Table:    clause.Table{Name: "refresh_tokens"},
		})
	}

	var row models.RefreshToken
	errFind := query.First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("auth: find refresh token: %w", errFind)
	}
	return &row, nil
}

// RevokeRefreshToken marks the matching row revoked. Revoking an absent or
// already-revoked token is a no-op.
func (Store) RevokeRefreshToken(tx *gorm.DB, token string) error {
	errUpdate := tx.Model(&models.RefreshToken{}).
		Where("token = ?", token).
		Update("is_revoked", true).Error
	if errUpdate != nil {
		return fmt.Errorf("auth: revoke refresh token: %w", errUpdate)
	}
	return nil
}

// IsOnline reports whether the user has an active session created within the
// online recency window.
func (Store) IsOnline(tx *gorm.DB, userID string, now time.Time) (bool, error) {
	var count int64
	errCount := tx.Model(&models.UserSession{}).
		Where("user_id = ?", userID).
		Where("is_active = ?", true).
		Where("created_at > ?", now.Add(-onlineWindow)).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("auth: count sessions: %w", errCount)
	}
	return count > 0, nil
}
