package auth

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamspace/backend/internal/middleware"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/tenant"
	"github.com/teamspace/backend/pkg/apperr"
	"github.com/teamspace/backend/pkg/response"
	"github.com/teamspace/backend/pkg/tokens"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required"`
	FirstName        string `json:"first_name" binding:"required"`
	LastName         string `json:"last_name" binding:"required"`
	OrganizationName string `json:"organization_name"`
	RememberMe       bool   `json:"remember_me"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// UpdateProfileRequest is the body for PATCH /auth/profile.
type UpdateProfileRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

// ChangePasswordRequest is the body for POST /auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// SelectOrganizationRequest is the body for POST /auth/select-organization.
type SelectOrganizationRequest struct {
	OrganizationID string `json:"organization_id" binding:"required"`
}

// EmailRequest is the body for POST /auth/forgot-password.
type EmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// TokenRequest is the body for POST /auth/verify-reset-token.
type TokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// ResetPasswordRequest is the body for POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse is returned by every endpoint that starts or renews a session.
// The refresh token only travels in its cookie.
type SessionResponse struct {
	AccessToken         string            `json:"access_token"`
	AccessExpiresAt     time.Time         `json:"access_expires_at"`
	RefreshExpiresAt    time.Time         `json:"refresh_expires_at"`
	User                models.UserPublic `json:"user"`
	CurrentOrganization *tenant.Context   `json:"current_organization,omitempty"`
}

// NewSessionResponse builds the response body for s.
func NewSessionResponse(s *Session) SessionResponse {
	return SessionResponse{
		AccessToken:         s.Tokens.AccessToken,
		AccessExpiresAt:     s.Tokens.AccessExpiresAt,
		RefreshExpiresAt:    s.Tokens.RefreshExpiresAt,
		User:                s.User.ToPublic(),
		CurrentOrganization: s.Tenant,
	}
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	svc         *Service
	oauth       OAuthProvider
	cookies     CookieConfig
	frontendURL string
	logger      *zap.Logger
}

// NewHandler creates an auth handler. oauth may be nil when no provider is configured.
func NewHandler(svc *Service, oauth OAuthProvider, cookies CookieConfig, frontendURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, oauth: oauth, cookies: cookies, frontendURL: frontendURL, logger: logger}
}

// Cookies returns the cookie settings, for handlers in other packages that start sessions.
func (h *Handler) Cookies() CookieConfig { return h.cookies }

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "email, password, first_name and last_name are required")
		return
	}
	session, err := h.svc.Register(c.Request.Context(), RegisterInput{
		Email:            req.Email,
		Password:         req.Password,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		OrganizationName: req.OrganizationName,
		RememberMe:       req.RememberMe,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.SetSession(c, session.Tokens)
	response.Created(c, NewSessionResponse(session))
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "email and password are required")
		return
	}
	session, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.SetSession(c, session.Tokens)
	response.OK(c, NewSessionResponse(session))
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	raw, _ := c.Cookie(RefreshTokenCookie)
	session, err := h.svc.Sessions().Refresh(c.Request.Context(), raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.SetSession(c, session.Tokens)
	response.OK(c, NewSessionResponse(session))
}

// Logout handles POST /auth/logout. Every session of the user is revoked
// unless scope=session is given.
func (h *Handler) Logout(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	scope := RevokeAllSessions()
	if c.Query("scope") == "session" {
		scope = RevokeSession(p.SessionID)
	}
	if err := h.svc.Sessions().Logout(c.Request.Context(), p.UserID, scope); err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.Clear(c)
	response.OK(c, gin.H{"message": "logged out"})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	profile, err := h.svc.Me(c.Request.Context(), p.UserID, p.OrganizationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

// GetProfile handles GET /auth/profile.
func (h *Handler) GetProfile(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	user, err := h.svc.loadUser(c.Request.Context(), p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user.ToPublic())
}

// UpdateProfile handles PATCH /auth/profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "first_name and last_name are required")
		return
	}
	user, err := h.svc.UpdateProfile(c.Request.Context(), p.UserID, req.FirstName, req.LastName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user.ToPublic())
}

// ChangePassword handles POST /auth/change-password. All sessions are
// revoked and a new one is started for the caller.
func (h *Handler) ChangePassword(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "new_password is required")
		return
	}
	session, err := h.svc.ChangePassword(c.Request.Context(), p.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.SetSession(c, session.Tokens)
	response.OK(c, NewSessionResponse(session))
}

// Organizations handles GET /auth/organizations.
func (h *Handler) Organizations(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	orgs, err := h.svc.Organizations(c.Request.Context(), p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, orgs)
}

// SelectOrganization handles POST /auth/select-organization.
func (h *Handler) SelectOrganization(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	var req SelectOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "organization_id is required")
		return
	}
	orgID, err := uuid.Parse(req.OrganizationID)
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	sel, err := h.svc.SelectOrganization(c.Request.Context(), p.UserID, p.SessionID, orgID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.SetAccess(c, sel.AccessToken, sel.AccessExpiresAt)
	response.OK(c, gin.H{
		"access_token":         sel.AccessToken,
		"access_expires_at":    sel.AccessExpiresAt,
		"current_organization": sel.Tenant,
	})
}

// ForgotPassword handles POST /auth/forgot-password. The response does not
// reveal whether the account exists.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "email is required")
		return
	}
	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "if an account exists for this email, a reset link has been sent"})
}

// VerifyResetToken handles POST /auth/verify-reset-token.
func (h *Handler) VerifyResetToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "token is required")
		return
	}
	if err := h.svc.VerifyResetToken(c.Request.Context(), req.Token); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"valid": true})
}

// ResetPassword handles POST /auth/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "token and password are required")
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.Clear(c)
	response.OK(c, gin.H{"message": "password has been reset, please log in"})
}

// GoogleLogin handles GET /auth/google by redirecting to the consent screen.
func (h *Handler) GoogleLogin(c *gin.Context) {
	if h.oauth == nil {
		response.Error(c, apperr.NotFound("google sign-in is not configured"))
		return
	}
	state, err := tokens.NewOpaque()
	if err != nil {
		response.Error(c, apperr.Internal("generate oauth state", err))
		return
	}
	h.cookies.set(c, oauthStateCookie, state, "/auth/google", time.Now().Add(10*time.Minute))
	c.Redirect(http.StatusTemporaryRedirect, h.oauth.AuthCodeURL(state))
}

// GoogleCallback handles GET /auth/google/callback. The browser is sent back
// to the frontend with session cookies set, or with an error flag.
func (h *Handler) GoogleCallback(c *gin.Context) {
	if h.oauth == nil {
		response.Error(c, apperr.NotFound("google sign-in is not configured"))
		return
	}
	expected, _ := c.Cookie(oauthStateCookie)
	h.cookies.set(c, oauthStateCookie, "", "/auth/google", time.Time{})
	state := c.Query("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		h.redirectOAuthError(c, "invalid_state")
		return
	}
	code := c.Query("code")
	if code == "" {
		h.redirectOAuthError(c, "access_denied")
		return
	}
	profile, err := h.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("oauth exchange failed", zap.String("provider", h.oauth.Name()), zap.Error(err))
		h.redirectOAuthError(c, "oauth_failed")
		return
	}
	session, err := h.svc.LoginOAuth(c.Request.Context(), *profile, false)
	if err != nil {
		h.logger.Warn("oauth login failed", zap.String("provider", h.oauth.Name()), zap.Error(err))
		h.redirectOAuthError(c, "oauth_failed")
		return
	}
	h.cookies.SetSession(c, session.Tokens)
	c.Redirect(http.StatusFound, h.frontendURL+"/dashboard")
}

func (h *Handler) redirectOAuthError(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound, h.frontendURL+"/login?error="+reason)
}
