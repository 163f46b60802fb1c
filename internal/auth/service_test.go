package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/knowva/knowva-server/internal/config"
	"github.com/knowva/knowva-server/internal/db"
	"github.com/knowva/knowva-server/internal/models"
	"github.com/knowva/knowva-server/internal/security"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open database: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate database: %v", errMigrate)
	}

	issuer := security.NewTokenIssuer(config.JWTConfig{
		Secret:        "test-secret",
		Issuer:        "knowva-app",
		Audience:      "knowva-users",
		AccessExpiry:  30 * time.Minute,
		RefreshExpiry: 30 * 24 * time.Hour,
	})
	return NewService(conn, issuer), conn
}

func registerParams() RegisterParams {
	return RegisterParams{
		Email:       "Player@Example.com",
		Password:    "Sup3rSecret!",
		Username:    "Player_One",
		DisplayName: "Player One",
	}
}

func TestRegister(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Register(context.Background(), registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected token pair, got %+v", result)
	}
	if result.ExpiresIn != 30*60*1000 {
		t.Fatalf("expected expiresIn 1800000, got %d", result.ExpiresIn)
	}

	profile := result.User
	if profile.Email != "player@example.com" {
		t.Fatalf("expected lowercased email, got %q", profile.Email)
	}
	if profile.Username != "player_one" {
		t.Fatalf("expected lowercased username, got %q", profile.Username)
	}
	if profile.Level != 1 || profile.Rank != "Beginner" || profile.WinRate != 0 {
		t.Fatalf("expected fresh stats, got %+v", profile)
	}
	if len(profile.Badges) != 0 {
		t.Fatalf("expected no badges, got %v", profile.Badges)
	}
	if profile.Preferences.DifficultyLevel != "Mixed" || !profile.Preferences.SoundEnabled {
		t.Fatalf("expected default preferences, got %+v", profile.Preferences)
	}
	if !profile.IsOnline {
		t.Fatalf("expected fresh registration to count as online")
	}

	claims, errParse := svc.issuer.ParseAccessToken(result.AccessToken)
	if errParse != nil {
		t.Fatalf("expected valid access token, got %v", errParse)
	}
	if claims.Subject != profile.ID {
		t.Fatalf("expected subject %q, got %q", profile.ID, claims.Subject)
	}
	if claims.SessionID == "" || claims.TokenType != "access" {
		t.Fatalf("expected session claims, got %+v", claims)
	}
}

func TestRegister_LongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Policy-valid at 104 characters, past bcrypt's 72-byte input limit.
	params := registerParams()
	params.Password = strings.Repeat("Abcdef1!", 13)

	if _, err := svc.Register(ctx, params, nil, nil); err != nil {
		t.Fatalf("expected registration to succeed, got %v", err)
	}
	if _, err := svc.Login(ctx, params.Email, params.Password, nil, nil); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
	if _, err := svc.Login(ctx, params.Email, "Abcdef1!", nil, nil); err == nil {
		t.Fatalf("expected wrong password to be rejected")
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	svc, _ := newTestService(t)

	params := registerParams()
	params.Password = "short"
	_, err := svc.Register(context.Background(), params, nil, nil)

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validationErr.Message != "Password validation failed" {
		t.Fatalf("unexpected message %q", validationErr.Message)
	}
	if !strings.Contains(validationErr.Details, "at least 8 characters") ||
		!strings.Contains(validationErr.Details, "; ") {
		t.Fatalf("expected aggregated reasons, got %q", validationErr.Details)
	}
}

func TestRegister_InvalidInput(t *testing.T) {
	svc, _ := newTestService(t)

	badEmail := registerParams()
	badEmail.Email = "not-an-email"
	if _, err := svc.Register(context.Background(), badEmail, nil, nil); err == nil ||
		err.Error() != "Invalid email format" {
		t.Fatalf("expected email validation error, got %v", err)
	}

	badUsername := registerParams()
	badUsername.Username = "x"
	_, errShort := svc.Register(context.Background(), badUsername, nil, nil)
	var validationErr *ValidationError
	if !errors.As(errShort, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", errShort)
	}

	badUsername.Username = "bad name!"
	if _, err := svc.Register(context.Background(), badUsername, nil, nil); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRegister_Conflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, registerParams(), nil, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	sameEmail := registerParams()
	sameEmail.Username = "other_name"
	_, errEmail := svc.Register(ctx, sameEmail, nil, nil)
	var conflictErr *ConflictError
	if !errors.As(errEmail, &conflictErr) || conflictErr.Field != "email" {
		t.Fatalf("expected email conflict, got %v", errEmail)
	}
	if conflictErr.Error() != "User with this email already exists" {
		t.Fatalf("unexpected conflict message %q", conflictErr.Error())
	}

	sameUsername := registerParams()
	sameUsername.Email = "other@example.com"
	_, errUsername := svc.Register(ctx, sameUsername, nil, nil)
	if !errors.As(errUsername, &conflictErr) || conflictErr.Field != "username" {
		t.Fatalf("expected username conflict, got %v", errUsername)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	result, errLogin := svc.Login(ctx, "PLAYER@example.COM", "Sup3rSecret!", nil, nil)
	if errLogin != nil {
		t.Fatalf("expected login to succeed, got %v", errLogin)
	}
	if result.User.ID != registered.User.ID {
		t.Fatalf("expected same user")
	}
	if result.RefreshToken == registered.RefreshToken {
		t.Fatalf("expected a fresh refresh token")
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, registerParams(), nil, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Unknown email and wrong password are indistinguishable.
	_, errUnknown := svc.Login(ctx, "nobody@example.com", "Sup3rSecret!", nil, nil)
	_, errWrong := svc.Login(ctx, "player@example.com", "WrongSecret1!", nil, nil)
	var unauthorizedErr *UnauthorizedError
	for _, err := range []error{errUnknown, errWrong} {
		if !errors.As(err, &unauthorizedErr) || unauthorizedErr.Message != "Invalid email or password" {
			t.Fatalf("expected uniform credential error, got %v", err)
		}
	}
}

func TestLogin_DeactivatedAccount(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	errDeactivate := conn.Model(&models.User{}).
		Where("id = ?", registered.User.ID).
		Update("is_active", false).Error
	if errDeactivate != nil {
		t.Fatalf("deactivate user: %v", errDeactivate)
	}

	_, errLogin := svc.Login(ctx, "player@example.com", "Sup3rSecret!", nil, nil)
	var unauthorizedErr *UnauthorizedError
	if !errors.As(errLogin, &unauthorizedErr) || unauthorizedErr.Message != "Account is deactivated" {
		t.Fatalf("expected deactivated error, got %v", errLogin)
	}
}

func TestLogin_RevokesExistingRefreshTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, errLogin := svc.Login(ctx, "player@example.com", "Sup3rSecret!", nil, nil); errLogin != nil {
		t.Fatalf("expected login to succeed, got %v", errLogin)
	}

	_, errRefresh := svc.Refresh(ctx, registered.RefreshToken)
	var unauthorizedErr *UnauthorizedError
	if !errors.As(errRefresh, &unauthorizedErr) {
		t.Fatalf("expected pre-login token to be revoked, got %v", errRefresh)
	}
}

func TestRefresh_Rotation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rotated, errRotate := svc.Refresh(ctx, registered.RefreshToken)
	if errRotate != nil {
		t.Fatalf("expected rotation to succeed, got %v", errRotate)
	}
	if rotated.RefreshToken == registered.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}
	if rotated.User.ID != registered.User.ID {
		t.Fatalf("expected same user")
	}

	// Replaying the consumed token must fail; the rotated one still works.
	var unauthorizedErr *UnauthorizedError
	if _, errReplay := svc.Refresh(ctx, registered.RefreshToken); !errors.As(errReplay, &unauthorizedErr) {
		t.Fatalf("expected replay to fail, got %v", errReplay)
	}
	if unauthorizedErr.Message != "Invalid or expired refresh token" {
		t.Fatalf("unexpected message %q", unauthorizedErr.Message)
	}
	if _, errNext := svc.Refresh(ctx, rotated.RefreshToken); errNext != nil {
		t.Fatalf("expected rotated token to work, got %v", errNext)
	}
}

func TestRefresh_Expired(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now().UTC()
	svc.now = func() time.Time { return base }

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	svc.now = func() time.Time { return base.Add(31 * 24 * time.Hour) }
	_, errRefresh := svc.Refresh(ctx, registered.RefreshToken)
	var unauthorizedErr *UnauthorizedError
	if !errors.As(errRefresh, &unauthorizedErr) {
		t.Fatalf("expected expired token to fail, got %v", errRefresh)
	}
}

func TestRefresh_DeactivatedOwner(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	errDeactivate := conn.Model(&models.User{}).
		Where("id = ?", registered.User.ID).
		Update("is_active", false).Error
	if errDeactivate != nil {
		t.Fatalf("deactivate user: %v", errDeactivate)
	}

	_, errRefresh := svc.Refresh(ctx, registered.RefreshToken)
	var unauthorizedErr *UnauthorizedError
	if !errors.As(errRefresh, &unauthorizedErr) {
		t.Fatalf("expected deactivated owner to fail refresh, got %v", errRefresh)
	}
}

func TestLogout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if errLogout := svc.Logout(ctx, registered.RefreshToken); errLogout != nil {
		t.Fatalf("expected logout to succeed, got %v", errLogout)
	}
	var unauthorizedErr *UnauthorizedError
	if _, errRefresh := svc.Refresh(ctx, registered.RefreshToken); !errors.As(errRefresh, &unauthorizedErr) {
		t.Fatalf("expected revoked token to fail refresh, got %v", errRefresh)
	}

	// Repeating, blank and unknown tokens are all no-ops.
	if errLogout := svc.Logout(ctx, registered.RefreshToken); errLogout != nil {
		t.Fatalf("expected repeated logout to succeed, got %v", errLogout)
	}
	if errLogout := svc.Logout(ctx, ""); errLogout != nil {
		t.Fatalf("expected blank logout to succeed, got %v", errLogout)
	}
	if errLogout := svc.Logout(ctx, "never-issued"); errLogout != nil {
		t.Fatalf("expected unknown logout to succeed, got %v", errLogout)
	}
}

func TestLogoutLeavesSessionActive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now().UTC()
	svc.now = func() time.Time { return base }

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if errLogout := svc.Logout(ctx, registered.RefreshToken); errLogout != nil {
		t.Fatalf("expected logout to succeed, got %v", errLogout)
	}

	// The session row stays active, so presence lingers until the five
	// minute window passes.
	profile, errProfile := svc.Profile(ctx, registered.User.ID)
	if errProfile != nil {
		t.Fatalf("expected profile, got %v", errProfile)
	}
	if !profile.IsOnline {
		t.Fatalf("expected user to still read as online right after logout")
	}

	svc.now = func() time.Time { return base.Add(6 * time.Minute) }
	profile, errProfile = svc.Profile(ctx, registered.User.ID)
	if errProfile != nil {
		t.Fatalf("expected profile, got %v", errProfile)
	}
	if profile.IsOnline {
		t.Fatalf("expected presence to lapse after the online window")
	}
}

func TestProfile_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Profile(context.Background(), "11111111-1111-1111-1111-111111111111")
	var notFoundErr *NotFoundError
	if !errors.As(err, &notFoundErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestProfile_WinRateAndRank(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	errStats := conn.Model(&models.User{}).
		Where("id = ?", registered.User.ID).
		Updates(map[string]any{"level": 7, "games_played": 3, "games_won": 1}).Error
	if errStats != nil {
		t.Fatalf("seed stats: %v", errStats)
	}

	profile, errProfile := svc.Profile(ctx, registered.User.ID)
	if errProfile != nil {
		t.Fatalf("expected profile, got %v", errProfile)
	}
	if profile.WinRate != 33.3 {
		t.Fatalf("expected win rate rounded to 33.3, got %v", profile.WinRate)
	}
	if profile.Rank != "Novice" {
		t.Fatalf("expected Novice, got %q", profile.Rank)
	}
}

func TestProfile_LenientBlobDecode(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	errCorrupt := conn.Model(&models.User{}).
		Where("id = ?", registered.User.ID).
		Updates(map[string]any{"preferences": "{not json", "badges": "[broken"}).Error
	if errCorrupt != nil {
		t.Fatalf("corrupt blobs: %v", errCorrupt)
	}

	profile, errProfile := svc.Profile(ctx, registered.User.ID)
	if errProfile != nil {
		t.Fatalf("expected profile despite corrupt blobs, got %v", errProfile)
	}
	if profile.Preferences.DifficultyLevel != "Mixed" {
		t.Fatalf("expected default preferences, got %+v", profile.Preferences)
	}
	if len(profile.Badges) != 0 {
		t.Fatalf("expected empty badges, got %v", profile.Badges)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now().UTC()
	svc.now = func() time.Time { return base }
	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	svc.now = func() time.Time { return base.Add(time.Hour) }
	name := "Quiz Master"
	avatar := "https://cdn.example.com/a.png"
	prefs := DefaultPreferences()
	prefs.DifficultyLevel = "Hard"
	prefs.PreferredCategories = []string{"science"}

	profile, errUpdate := svc.UpdateProfile(ctx, registered.User.ID, ProfileUpdate{
		DisplayName: &name,
		AvatarURL:   &avatar,
		Preferences: &prefs,
	})
	if errUpdate != nil {
		t.Fatalf("expected update to succeed, got %v", errUpdate)
	}
	if profile.DisplayName != "Quiz Master" {
		t.Fatalf("expected display name update, got %q", profile.DisplayName)
	}
	if profile.AvatarURL == nil || *profile.AvatarURL != avatar {
		t.Fatalf("expected avatar update, got %v", profile.AvatarURL)
	}
	if profile.Preferences.DifficultyLevel != "Hard" || len(profile.Preferences.PreferredCategories) != 1 {
		t.Fatalf("expected preferences replaced, got %+v", profile.Preferences)
	}
	if profile.LastActiveAt == registered.User.LastActiveAt {
		t.Fatalf("expected lastActiveAt to move on update")
	}
}

func TestUpdateProfile_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var validationErr *ValidationError
	empty := ""
	if _, errName := svc.UpdateProfile(ctx, registered.User.ID, ProfileUpdate{DisplayName: &empty}); !errors.As(errName, &validationErr) {
		t.Fatalf("expected display name validation error, got %v", errName)
	}
	long := strings.Repeat("x", 101)
	if _, errName := svc.UpdateProfile(ctx, registered.User.ID, ProfileUpdate{DisplayName: &long}); !errors.As(errName, &validationErr) {
		t.Fatalf("expected display name validation error, got %v", errName)
	}
	badURL := "not a url"
	_, errAvatar := svc.UpdateProfile(ctx, registered.User.ID, ProfileUpdate{AvatarURL: &badURL})
	if !errors.As(errAvatar, &validationErr) || validationErr.Message != "Invalid avatar URL format" {
		t.Fatalf("expected avatar validation error, got %v", errAvatar)
	}
}

func TestStats(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerParams(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	errStats := conn.Model(&models.User{}).
		Where("id = ?", registered.User.ID).
		Updates(map[string]any{
			"total_score":    int64(4200),
			"games_played":   3,
			"games_won":      1,
			"current_streak": 1,
			"best_streak":    2,
			"level":          7,
		}).Error
	if errStats != nil {
		t.Fatalf("seed stats: %v", errStats)
	}

	stats, errLoad := svc.Stats(ctx, registered.User.ID)
	if errLoad != nil {
		t.Fatalf("expected stats, got %v", errLoad)
	}
	if stats["totalScore"] != int64(4200) || stats["gamesPlayed"] != 3 || stats["gamesWon"] != 1 {
		t.Fatalf("unexpected counters: %v", stats)
	}
	if stats["currentStreak"] != 1 || stats["bestStreak"] != 2 || stats["level"] != 7 {
		t.Fatalf("unexpected counters: %v", stats)
	}
	// The stats view carries the unrounded rate.
	if stats["winRate"] != float64(1)/float64(3)*100 {
		t.Fatalf("expected unrounded win rate, got %v", stats["winRate"])
	}

	var notFoundErr *NotFoundError
	if _, errMissing := svc.Stats(ctx, "22222222-2222-2222-2222-222222222222"); !errors.As(errMissing, &notFoundErr) {
		t.Fatalf("expected NotFoundError, got %v", errMissing)
	}
}

func TestRankFor(t *testing.T) {
	cases := []struct {
		level   int
		winRate float64
		want    string
	}{
		{level: 1, winRate: 0, want: "Beginner"},
		{level: 4, winRate: 95, want: "Beginner"},
		{level: 5, winRate: 0, want: "Novice"},
		{level: 9, winRate: 49.9, want: "Novice"},
		{level: 12, winRate: 60, want: "Intermediate"},
		{level: 30, winRate: 75, want: "Advanced"},
		{level: 60, winRate: 85, want: "Expert"},
		// A tier's win-rate gate failing skips ahead, not back.
		{level: 7, winRate: 80, want: "Expert"},
		{level: 7, winRate: 95, want: "Master"},
		{level: 150, winRate: 0, want: "Master"},
		{level: 99, winRate: 90, want: "Master"},
	}
	for _, tc := range cases {
		if got := rankFor(tc.level, tc.winRate); got != tc.want {
			t.Fatalf("rankFor(%d, %v): expected %q, got %q", tc.level, tc.winRate, got, tc.want)
		}
	}
}
