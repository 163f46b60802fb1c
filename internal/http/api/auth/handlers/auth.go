package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/knowva/knowva-server/internal/auth"
)

// AuthHandler serves the authentication endpoints.
type AuthHandler struct {
	svc *auth.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type updateProfileRequest struct {
	DisplayName *string               `json:"displayName"`
	AvatarURL   *string               `json:"avatarUrl"`
	Preferences *auth.UserPreferences `json:"preferences"`
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	result, errRegister := h.svc.Register(c.Request.Context(), auth.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		Username:    req.Username,
		DisplayName: req.DisplayName,
	}, clientIP(c), userAgent(c))
	if errRegister != nil {
		respondServiceError(c, errRegister)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	result, errLogin := h.svc.Login(c.Request.Context(), req.Email, req.Password, clientIP(c), userAgent(c))
	if errLogin != nil {
		respondServiceError(c, errLogin)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	result, errRefresh := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if errRefresh != nil {
		respondServiceError(c, errRefresh)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Logout handles POST /api/v1/auth/logout. The refresh token to revoke rides
// in the X-Refresh-Token header; a missing header still logs out cleanly.
func (h *AuthHandler) Logout(c *gin.Context) {
	if errLogout := h.svc.Logout(c.Request.Context(), c.GetHeader("X-Refresh-Token")); errLogout != nil {
		respondServiceError(c, errLogout)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse("Logged out successfully"))
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	profile, errProfile := h.svc.Profile(c.Request.Context(), c.GetString(ContextUserIDKey))
	if errProfile != nil {
		respondServiceError(c, errProfile)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateMe handles PUT /api/v1/auth/me.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	profile, errUpdate := h.svc.UpdateProfile(c.Request.Context(), c.GetString(ContextUserIDKey), auth.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Preferences: req.Preferences,
	})
	if errUpdate != nil {
		respondServiceError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// MyStats handles GET /api/v1/auth/me/stats.
func (h *AuthHandler) MyStats(c *gin.Context) {
	stats, errStats := h.svc.Stats(c.Request.Context(), c.GetString(ContextUserIDKey))
	if errStats != nil {
		respondServiceError(c, errStats)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// clientIP returns the caller address, nil when unknown.
func clientIP(c *gin.Context) *string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		return nil
	}
	return &ip
}

// userAgent returns the caller user agent, nil when absent.
func userAgent(c *gin.Context) *string {
	ua := strings.TrimSpace(c.Request.UserAgent())
	if ua == "" {
		return nil
	}
	return &ua
}
