package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/auth/mfa"
	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/internal/services"
	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

// AuthHandler manages registration and the password-then-TOTP login flow.
// Tokens are only issued after a challenge is verified.
type AuthHandler struct {
	users     *services.UserService
	twoFactor *mfa.TwoFactorService
	sessions  *iauth.SessionService
}

func NewAuthHandler(users *services.UserService, twoFactor *mfa.TwoFactorService, sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{users: users, twoFactor: twoFactor, sessions: sessions}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type challengeRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type verifyRequest struct {
	Challenge string `json:"challenge" validate:"required"`
	Code      string `json:"code" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"email":         user.Email,
		"is_superuser":  user.IsSuperuser,
		"is_active":     user.IsActive,
		"last_login_at": user.LastLoginAt,
	}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Register(requestContext(c), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, userPayload(user))
}

// POST /api/token/2fa-challenge
func (h *AuthHandler) Challenge(c *gin.Context) {
	var req challengeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	challenge, err := h.twoFactor.BeginLogin(requestContext(c), req.Username, req.Password)
	if err != nil {
		response.Error(c, twoFactorError(err))
		return
	}

	payload := gin.H{
		"challenge":  challenge.Token,
		"must_setup": challenge.MustSetup,
		"expires_at": challenge.ExpiresAt,
	}
	if challenge.MustSetup {
		payload["otpauth_url"] = challenge.ProvisioningURI
	}

	response.Success(c, http.StatusAccepted, payload)
}

// POST /api/token/2fa-verify
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.twoFactor.VerifyLogin(ctx, req.Challenge, strings.TrimSpace(req.Code))
	if err != nil {
		response.Error(c, verifyLoginError(err))
		return
	}

	pair, _, err := h.sessions.CreateSession(ctx, user.ID, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
		"user":          userPayload(user),
	})
}

// POST /api/token/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.RefreshSession(requestContext(c), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}

	response.Success(c, http.StatusOK, pair)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := currentSessionID(c)
	if sid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(requestContext(c), sid); err != nil {
		response.Error(c, sessionError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	ctx := requestContext(c)
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	enabled, err := h.twoFactor.Enabled(ctx, userID)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	payload := userPayload(user)
	payload["two_factor_enabled"] = enabled
	response.Success(c, http.StatusOK, payload)
}
