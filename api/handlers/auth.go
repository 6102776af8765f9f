package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/packet-anomaly/internal/auth"
	"github.com/OldStager01/packet-anomaly/pkg/config"
	"github.com/OldStager01/packet-anomaly/pkg/database/queries"
)

// UserLookup is satisfied by *queries.UserRepository.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*queries.User, error)
}

type AuthHandler struct {
	users       UserLookup
	authService *auth.Service
	cookie      config.APIConfig
}

func NewAuthHandler(users UserLookup, authService *auth.Service, cfg config.APIConfig) *AuthHandler {
	return &AuthHandler{
		users:       users,
		authService: authService,
		cookie:      cfg,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"analyst"`
	Password string `json:"password" binding:"required" example:"S3cure!pass"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in" example:"86400"`
	Username  string `json:"username" example:"analyst"`
}

// Login godoc
// @Summary Log in
// @Description Exchange credentials for a bearer token. The token is also set as an HTTP-only cookie.
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication requires a database"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, queries.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	expiresIn := int(h.authService.Duration().Seconds())
	maxAge := h.cookie.CookieMaxAge
	if maxAge <= 0 {
		maxAge = expiresIn
	}

	if h.cookie.CookieName != "" {
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(
			h.cookie.CookieName,
			token,
			maxAge,
			h.cookie.CookiePath,
			"",
			h.cookie.CookieSecure,
			h.cookie.CookieHTTPOnly,
		)
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresIn: expiresIn,
		Username:  user.Username,
	})
}
