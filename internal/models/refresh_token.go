package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefreshToken is one issued opaque refresh credential. Consumed tokens are
// revoked, never deleted, so a replayed token stays recognizable.
type RefreshToken struct {
	ID     string `gorm:"type:uuid;primaryKey"`       // Primary key.
	UserID string `gorm:"type:uuid;not null;index"`   // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"`          // Owning user.

	Token      string  `gorm:"type:varchar(255);not null;uniqueIndex"` // Opaque token string.
	DeviceID   *string `gorm:"type:varchar(255)"`                      // Optional device identifier.
	DeviceName *string `gorm:"type:varchar(255)"`                      // Optional device name.

	ExpiresAt  time.Time `gorm:"not null"`                // Expiry timestamp.
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	LastUsedAt time.Time `gorm:"not null;autoCreateTime"` // Last use timestamp.
	IsRevoked  bool      `gorm:"not null;default:false"`  // Revocation flag.
}

// BeforeCreate assigns a UUID primary key when absent.
func (t *RefreshToken) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
