package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserSession marks one login event. Online presence is derived from recent
// active sessions; the row is not closed on logout.
type UserSession struct {
	ID     string `gorm:"type:uuid;primaryKey"`     // Primary key.
	UserID string `gorm:"type:uuid;not null;index"` // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"`        // Owning user.

	SessionToken string  `gorm:"type:varchar(255);not null;uniqueIndex"` // Random session token.
	IPAddress    *string `gorm:"type:varchar(45)"`                       // Client IP, when known.
	UserAgent    *string `gorm:"type:text"`                              // Client user agent, when known.

	IsActive  bool      `gorm:"not null;default:true"`   // Active flag.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	ExpiresAt time.Time `gorm:"not null"`                // Expiry timestamp.
}

// BeforeCreate assigns a UUID primary key when absent.
func (s *UserSession) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
