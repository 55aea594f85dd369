package invitations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/auth"
	"github.com/teamspace/backend/internal/middleware"
	"github.com/teamspace/backend/pkg/response"
)

// Handler handles invitation HTTP endpoints.
type Handler struct {
	svc     *Service
	cookies auth.CookieConfig
}

// NewHandler creates an invitations handler.
func NewHandler(svc *Service, cookies auth.CookieConfig) *Handler {
	return &Handler{svc: svc, cookies: cookies}
}

// InviteRequest is the body for POST /organizations/:orgId/invitations.
type InviteRequest struct {
	Email  string `json:"email" binding:"required"`
	RoleID string `json:"role_id" binding:"required"`
}

// AcceptRequest is the body for POST /auth/accept-invitation.
type AcceptRequest struct {
	Token      string `json:"token" binding:"required"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// Invite handles POST /organizations/:orgId/invitations.
func (h *Handler) Invite(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	tc := middleware.MustTenant(c)
	var body InviteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "email and role_id are required")
		return
	}
	roleID, err := uuid.Parse(body.RoleID)
	if err != nil {
		response.BadRequest(c, "invalid role id")
		return
	}
	inv, err := h.svc.Invite(c.Request.Context(), p.UserID, tc.OrganizationID, body.Email, roleID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, inv)
}

// List handles GET /organizations/:orgId/invitations.
func (h *Handler) List(c *gin.Context) {
	tc := middleware.MustTenant(c)
	list, err := h.svc.ListPending(c.Request.Context(), tc.OrganizationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Resend handles POST /organizations/:orgId/invitations/:invitationId/resend.
func (h *Handler) Resend(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	tc := middleware.MustTenant(c)
	id, err := uuid.Parse(c.Param("invitationId"))
	if err != nil {
		response.BadRequest(c, "invalid invitation id")
		return
	}
	inv, err := h.svc.Resend(c.Request.Context(), p.UserID, tc.OrganizationID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, inv)
}

// Revoke handles DELETE /organizations/:orgId/invitations/:invitationId.
func (h *Handler) Revoke(c *gin.Context) {
	tc := middleware.MustTenant(c)
	id, err := uuid.Parse(c.Param("invitationId"))
	if err != nil {
		response.BadRequest(c, "invalid invitation id")
		return
	}
	if err := h.svc.Revoke(c.Request.Context(), tc.OrganizationID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Accept handles POST /auth/accept-invitation and logs the user in.
func (h *Handler) Accept(c *gin.Context) {
	var body AcceptRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "token is required")
		return
	}
	session, err := h.svc.Accept(c.Request.Context(), AcceptInput{
		Token:      body.Token,
		FirstName:  body.FirstName,
		LastName:   body.LastName,
		Password:   body.Password,
		RememberMe: body.RememberMe,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.SetSession(c, session.Tokens)
	response.OK(c, auth.NewSessionResponse(session))
}
