package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/knowva/knowva-server/internal/models"
	"github.com/knowva/knowva-server/internal/security"
)

var (
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@([A-Za-z0-9.-]+\.[A-Za-z]{2,})$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// Service implements the authentication use cases. Every call runs as one
// database transaction with a single clock reading.
type Service struct {
	db     *gorm.DB
	issuer *security.TokenIssuer
	store  Store
	now    func() time.Time
}

// NewService builds the auth service on an open database connection.
func NewService(conn *gorm.DB, issuer *security.TokenIssuer) *Service {
	return &Service{
		db:     conn,
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterParams carries the registration input.
type RegisterParams struct {
	Email       string
	Password    string
	Username    string
	DisplayName string
}

// ProfileUpdate carries a partial profile patch. Nil fields are left
// untouched; a non-nil Preferences replaces the stored blob wholesale.
type ProfileUpdate struct {
	DisplayName *string
	AvatarURL   *string
	Preferences *UserPreferences
}

// Register creates a user account and signs it in.
func (s *Service) Register(ctx context.Context, params RegisterParams, ipAddress, userAgent *string) (*AuthResult, error) {
	var result *AuthResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		if reasons := security.CheckPasswordStrength(params.Password); len(reasons) > 0 {
			return &ValidationError{
				Message: "Password validation failed",
				Details: strings.Join(reasons, "; "),
			}
		}
		if !emailPattern.MatchString(params.Email) {
			return &ValidationError{Message: "Invalid email format"}
		}
		if len(params.Username) < 3 || len(params.Username) > 50 || !usernamePattern.MatchString(params.Username) {
			return &ValidationError{
				Message: "Username must be 3-50 characters and contain only letters, numbers, and underscores",
			}
		}

		email := strings.ToLower(params.Email)
		username := strings.ToLower(params.Username)

		var existing models.User
		errFind := tx.Where("email = ? OR username = ?", email, username).First(&existing).Error
		if errFind == nil {
			field := "username"
			if existing.Email == email {
				field = "email"
			}
			return &ConflictError{Field: field}
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("auth: check existing user: %w", errFind)
		}

		hash, errHash := security.HashPassword(params.Password)
		if errHash != nil {
			return errHash
		}
		prefs, errPrefs := json.Marshal(DefaultPreferences())
		if errPrefs != nil {
			return fmt.Errorf("auth: encode preferences: %w", errPrefs)
		}

		user := models.User{
			Username:     username,
			DisplayName:  params.DisplayName,
			Email:        email,
			PasswordHash: hash,
			Level:        1,
			Preferences:  datatypes.JSON(prefs),
			Badges:       datatypes.JSON("[]"),
			IsActive:     true,
			CreatedAt:    now,
			LastActiveAt: now,
		}
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			// Concurrent registration can slip past the pre-check; the
			// unique index is the final arbiter.
			if field, ok := uniqueViolationField(errCreate); ok {
				return &ConflictError{Field: field}
			}
			return fmt.Errorf("auth: create user: %w", errCreate)
		}

		issued, errIssue := s.issueTokens(tx, user.ID, ipAddress, userAgent, now)
		if errIssue != nil {
			return errIssue
		}
		result = issued
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return result, nil
}

// Login authenticates by email and password and issues a fresh token pair,
// revoking every previously issued refresh token.
func (s *Service) Login(ctx context.Context, email, password string, ipAddress, userAgent *string) (*AuthResult, error) {
	var result *AuthResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		var user models.User
		errFind := tx.Where("email = ?", strings.ToLower(email)).First(&user).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return &UnauthorizedError{Message: "Invalid email or password"}
		}
		if errFind != nil {
			return fmt.Errorf("auth: find user: %w", errFind)
		}
		if !security.VerifyPassword(password, user.PasswordHash) {
			return &UnauthorizedError{Message: "Invalid email or password"}
		}
		if !user.IsActive {
			return &UnauthorizedError{Message: "Account is deactivated"}
		}

		if errRevoke := s.store.RevokeAllRefreshTokens(tx, user.ID); errRevoke != nil {
			return errRevoke
		}
		errTouch := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("last_active_at", now).Error
		if errTouch != nil {
			return fmt.Errorf("auth: touch last active: %w", errTouch)
		}

		issued, errIssue := s.issueTokens(tx, user.ID, ipAddress, userAgent, now)
		if errIssue != nil {
			return errIssue
		}
		result = issued
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return result, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued atomically. A replayed token fails here, which bounds the
// damage of a stolen refresh token to one use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	var result *AuthResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		row, errFind := s.store.FindUsableRefreshToken(tx, refreshToken, now)
		if errFind != nil {
			return errFind
		}
		if row == nil {
			return &UnauthorizedError{Message: "Invalid or expired refresh token"}
		}

		// Rotation mints a fresh session id without opening a new session
		// row; presence still hangs off the login session.
		sessionID := uuid.NewString()
		access, errAccess := s.issuer.AccessToken(row.UserID, sessionID, now)
		if errAccess != nil {
			return errAccess
		}
		next, errNext := s.issuer.RefreshToken()
		if errNext != nil {
			return errNext
		}

		if errRevoke := s.store.RevokeRefreshToken(tx, refreshToken); errRevoke != nil {
			return errRevoke
		}
		if errStore := s.store.StoreRefreshToken(tx, row.UserID, next, now.Add(s.issuer.RefreshExpiry())); errStore != nil {
			return errStore
		}

		profile, errProfile := s.profileByID(tx, row.UserID, now)
		if errProfile != nil {
			return errProfile
		}
		result = &AuthResult{
			AccessToken:  access,
			RefreshToken: next,
			User:         profile,
			ExpiresIn:    s.issuer.AccessExpiry().Milliseconds(),
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return result, nil
}

// Logout revokes the presented refresh token. A blank, unknown or
// already-revoked token is a no-op; the login session row stays active, so
// presence can linger until the online window passes.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.store.RevokeRefreshToken(tx, refreshToken)
	})
}

// Profile returns the public projection of the user.
func (s *Service) Profile(ctx context.Context, userID string) (*UserProfile, error) {
	var profile *UserProfile
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, errProfile := s.profileByID(tx, userID, s.now())
		if errProfile != nil {
			return errProfile
		}
		profile = loaded
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return profile, nil
}

// UpdateProfile applies a partial patch and returns the refreshed projection.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*UserProfile, error) {
	var profile *UserProfile
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		var user models.User
		errFind := tx.Where("id = ?", userID).First(&user).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return &NotFoundError{Message: "User not found"}
		}
		if errFind != nil {
			return fmt.Errorf("auth: find user: %w", errFind)
		}

		changes := map[string]any{"last_active_at": now}
		if update.DisplayName != nil {
			length := utf8.RuneCountInString(*update.DisplayName)
			if length < 1 || length > 100 {
				return &ValidationError{Message: "Display name must be between 1 and 100 characters"}
			}
			changes["display_name"] = *update.DisplayName
		}
		if update.AvatarURL != nil {
			if !isValidURL(*update.AvatarURL) {
				return &ValidationError{Message: "Invalid avatar URL format"}
			}
			changes["avatar_url"] = *update.AvatarURL
		}
		if update.Preferences != nil {
			encoded, errEncode := json.Marshal(update.Preferences)
			if errEncode != nil {
				return fmt.Errorf("auth: encode preferences: %w", errEncode)
			}
			changes["preferences"] = datatypes.JSON(encoded)
		}

		errUpdate := tx.Model(&models.User{}).Where("id = ?", userID).Updates(changes).Error
		if errUpdate != nil {
			return fmt.Errorf("auth: update profile: %w", errUpdate)
		}

		loaded, errProfile := s.profileByID(tx, userID, now)
		if errProfile != nil {
			return errProfile
		}
		profile = loaded
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return profile, nil
}

// Stats returns the raw game-stat counters. Unlike the profile projection the
// win rate here is not rounded.
func (s *Service) Stats(ctx context.Context, userID string) (map[string]any, error) {
	var stats map[string]any
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		errFind := tx.Where("id = ?", userID).First(&user).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return &NotFoundError{Message: "User not found"}
		}
		if errFind != nil {
			return fmt.Errorf("auth: find user: %w", errFind)
		}

		stats = map[string]any{
			"totalScore":    user.TotalScore,
			"gamesPlayed":   user.GamesPlayed,
			"gamesWon":      user.GamesWon,
			"currentStreak": user.CurrentStreak,
			"bestStreak":    user.BestStreak,
			"level":         user.Level,
			"winRate":       winRate(user.GamesWon, user.GamesPlayed),
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return stats, nil
}

// issueTokens creates a login session for the user, mints the token pair and
// persists the refresh token.
func (s *Service) issueTokens(tx *gorm.DB, userID string, ipAddress, userAgent *string, now time.Time) (*AuthResult, error) {
	sessionID, errSession := s.store.CreateSession(tx, userID, ipAddress, userAgent, now)
	if errSession != nil {
		return nil, errSession
	}

	access, errAccess := s.issuer.AccessToken(userID, sessionID, now)
	if errAccess != nil {
		return nil, errAccess
	}
	refresh, errRefresh := s.issuer.RefreshToken()
	if errRefresh != nil {
		return nil, errRefresh
	}
	if errStore := s.store.StoreRefreshToken(tx, userID, refresh, now.Add(s.issuer.RefreshExpiry())); errStore != nil {
		return nil, errStore
	}

	profile, errProfile := s.profileByID(tx, userID, now)
	if errProfile != nil {
		return nil, errProfile
	}
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         profile,
		ExpiresIn:    s.issuer.AccessExpiry().Milliseconds(),
	}, nil
}

// profileByID builds the public projection from a user row.
func (s *Service) profileByID(tx *gorm.DB, userID string, now time.Time) (*UserProfile, error) {
	var user models.User
	errFind := tx.Where("id = ?", userID).First(&user).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	if errFind != nil {
		return nil, fmt.Errorf("auth: load user: %w", errFind)
	}

	rate := winRate(user.GamesWon, user.GamesPlayed)
	online, errOnline := s.store.IsOnline(tx, user.ID, now)
	if errOnline != nil {
		return nil, errOnline
	}

	return &UserProfile{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		AvatarURL:   user.AvatarURL,
		Level:       user.Level,
		TotalScore:  user.TotalScore,
		GamesPlayed: user.GamesPlayed,
		GamesWon:    user.GamesWon,
		// Rank sees the unrounded rate; the response carries one decimal.
		WinRate:      math.Round(rate*10) / 10,
		Rank:         rankFor(user.Level, rate),
		Badges:       decodeBadges(user.Badges),
		Preferences:  decodePreferences(user.Preferences),
		CreatedAt:    user.CreatedAt.UTC().Format(time.RFC3339Nano),
		LastActiveAt: user.LastActiveAt.UTC().Format(time.RFC3339Nano),
		IsOnline:     online,
	}, nil
}

// winRate returns the win percentage, zero when no games were played.
func winRate(won, played int) float64 {
	if played <= 0 {
		return 0
	}
	return float64(won) / float64(played) * 100
}

// rankFor maps level and win rate to a rank name. The per-tier win-rate
// gates are non-monotonic on purpose: failing a tier's win-rate check falls
// through to the next tier's level check, so a low-level player with a high
// win rate can land several tiers up.
func rankFor(level int, winRate float64) string {
	switch {
	case level < 5:
		return "Beginner"
	case level < 10 && winRate < 50:
		return "Novice"
	case level < 20 && winRate < 70:
		return "Intermediate"
	case level < 50 && winRate < 80:
		return "Advanced"
	case level < 100 && winRate < 90:
		return "Expert"
	default:
		return "Master"
	}
}

// decodePreferences decodes the stored blob. Missing fields keep their
// defaults; an undecodable blob falls back to the full default set.
func decodePreferences(raw datatypes.JSON) UserPreferences {
	decoded := DefaultPreferences()
	if len(raw) == 0 {
		return decoded
	}
	if errDecode := json.Unmarshal(raw, &decoded); errDecode != nil {
		return DefaultPreferences()
	}
	if decoded.PreferredCategories == nil {
		decoded.PreferredCategories = []string{}
	}
	return decoded
}

// decodeBadges decodes the stored badge list, empty on failure.
func decodeBadges(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var badges []string
	if errDecode := json.Unmarshal(raw, &badges); errDecode != nil || badges == nil {
		return []string{}
	}
	return badges
}

// isValidURL accepts absolute URLs with a scheme and host.
func isValidURL(raw string) bool {
	parsed, errParse := url.Parse(raw)
	return errParse == nil && parsed.Scheme != "" && parsed.Host != ""
}

// uniqueViolationField classifies a unique-constraint violation by the
// colliding column. Understands PostgreSQL error codes and the SQLite
// driver's textual form.
func uniqueViolationField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgerrcode.UniqueViolation {
			return "", false
		}
		if strings.Contains(pgErr.ConstraintName, "username") {
			return "username", true
		}
		return "email", true
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return "", false
	}
	if strings.Contains(msg, "username") {
		return "username", true
	}
	return "email", true
}
