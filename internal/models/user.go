package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents a player account and its game-stat aggregate.
type User struct {
	ID string `gorm:"type:uuid;primaryKey"` // Primary key.

	Username     string  `gorm:"type:varchar(50);not null;uniqueIndex"`  // Unique login name, stored lowercase.
	DisplayName  string  `gorm:"type:varchar(100);not null"`             // Display name.
	Email        string  `gorm:"type:varchar(255);not null;uniqueIndex"` // Email address, stored lowercase.
	PasswordHash string  `gorm:"type:varchar(255);not null"`             // Bcrypt password hash.
	AvatarURL    *string `gorm:"type:varchar(500)"`                      // Optional avatar URL.

	Level         int   `gorm:"not null;default:1"` // Current level.
	TotalScore    int64 `gorm:"not null;default:0"` // Lifetime score.
	GamesPlayed   int   `gorm:"not null;default:0"` // Games played.
	GamesWon      int   `gorm:"not null;default:0"` // Games won.
	CurrentStreak int   `gorm:"not null;default:0"` // Current win streak.
	BestStreak    int   `gorm:"not null;default:0"` // Best win streak.

	Preferences datatypes.JSON `gorm:"not null;default:'{}'"` // Serialized user preferences.
	Badges      datatypes.JSON `gorm:"not null;default:'[]'"` // Serialized badge list.

	IsVerified bool `gorm:"not null;default:false"` // Email verified flag.
	IsActive   bool `gorm:"not null;default:true"`  // Whether the user can sign in.
	IsPremium  bool `gorm:"not null;default:false"` // Premium flag.

	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Issued refresh tokens.
	Sessions      []UserSession  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Login sessions.

	CreatedAt       time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	LastActiveAt    time.Time  `gorm:"not null;autoCreateTime"` // Last activity timestamp.
	EmailVerifiedAt *time.Time // Email verification timestamp.
}

// BeforeCreate assigns a UUID primary key when absent.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
