package auth

// UserPreferences is the typed view of the preferences blob. It is serialized
// only at the storage boundary.
type UserPreferences struct {
	PreferredCategories  []string `json:"preferredCategories"`
	DifficultyLevel      string   `json:"difficultyLevel"`
	SoundEnabled         bool     `json:"soundEnabled"`
	NotificationsEnabled bool     `json:"notificationsEnabled"`
	ProfileVisibility    string   `json:"profileVisibility"`
}

// DefaultPreferences returns the preferences applied on registration and when
// a stored blob cannot be decoded.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		PreferredCategories:  []string{},
		DifficultyLevel:      "Mixed",
		SoundEnabled:         true,
		NotificationsEnabled: true,
		ProfileVisibility:    "Public",
	}
}

// UserProfile is the public projection of a user row.
type UserProfile struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	DisplayName  string          `json:"displayName"`
	Email        string          `json:"email"`
	AvatarURL    *string         `json:"avatarUrl,omitempty"`
	Level        int             `json:"level"`
	TotalScore   int64           `json:"totalScore"`
	GamesPlayed  int             `json:"gamesPlayed"`
	GamesWon     int             `json:"gamesWon"`
	WinRate      float64         `json:"winRate"`
	Rank         string          `json:"rank"`
	Badges       []string        `json:"badges"`
	Preferences  UserPreferences `json:"preferences"`
	CreatedAt    string          `json:"createdAt"`
	LastActiveAt string          `json:"lastActiveAt"`
	IsOnline     bool            `json:"isOnline"`
}

// AuthResult is returned by register, login and refresh. ExpiresIn is the
// access-token lifetime in milliseconds.
type AuthResult struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *UserProfile `json:"user"`
	ExpiresIn    int64        `json:"expiresIn"`
}
