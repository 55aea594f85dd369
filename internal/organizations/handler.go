package organizations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/middleware"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/response"
)

// Handler handles organization HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an organizations handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateOrganizationRequest is the body for POST /organizations.
type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug"`
}

// UpdateMemberRoleRequest is the body for PATCH /organizations/:orgId/members/:userId/role.
type UpdateMemberRoleRequest struct {
	RoleID string `json:"role_id" binding:"required"`
}

// UpdateMemberStatusRequest is the body for PATCH /organizations/:orgId/members/:userId/status.
type UpdateMemberStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// DeletionRequestBody is the body for the deletion endpoints. Token is only
// used on confirm.
type DeletionRequestBody struct {
	ConfirmationPhrase string `json:"confirmation_phrase" binding:"required"`
	Token              string `json:"token"`
}

// CreateOrganization handles POST /organizations. The caller becomes its admin.
func (h *Handler) CreateOrganization(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	var body CreateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name required")
		return
	}
	org, err := h.svc.Create(c.Request.Context(), p.UserID, body.Name, body.Slug)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, org)
}

// Get handles GET /organizations/:orgId.
func (h *Handler) Get(c *gin.Context) {
	tc := middleware.MustTenant(c)
	org, err := h.svc.Get(c.Request.Context(), tc.OrganizationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"organization": org, "role": tc.Role})
}

// ListMembers handles GET /organizations/:orgId/members.
func (h *Handler) ListMembers(c *gin.Context) {
	tc := middleware.MustTenant(c)
	members, err := h.svc.ListMembers(c.Request.Context(), tc.OrganizationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, members)
}

// UpdateMemberRole handles PATCH /organizations/:orgId/members/:userId/role.
func (h *Handler) UpdateMemberRole(c *gin.Context) {
	tc := middleware.MustTenant(c)
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	var body UpdateMemberRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "role_id required")
		return
	}
	roleID, err := uuid.Parse(body.RoleID)
	if err != nil {
		response.BadRequest(c, "invalid role id")
		return
	}
	if err := h.svc.UpdateMemberRole(c.Request.Context(), tc.OrganizationID, userID, roleID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"user_id": userID, "role_id": roleID})
}

// UpdateMemberStatus handles PATCH /organizations/:orgId/members/:userId/status.
func (h *Handler) UpdateMemberStatus(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	tc := middleware.MustTenant(c)
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	var body UpdateMemberStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "status required")
		return
	}
	status := models.MembershipStatus(body.Status)
	if err := h.svc.UpdateMemberStatus(c.Request.Context(), p.UserID, tc.OrganizationID, userID, status); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"user_id": userID, "status": status})
}

// RemoveMember handles DELETE /organizations/:orgId/members/:userId.
func (h *Handler) RemoveMember(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	tc := middleware.MustTenant(c)
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	if err := h.svc.RemoveMember(c.Request.Context(), p.UserID, tc.OrganizationID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// InitiateDeletion handles POST /organizations/:orgId/delete/initiate.
func (h *Handler) InitiateDeletion(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	tc := middleware.MustTenant(c)
	var body DeletionRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "confirmation_phrase required")
		return
	}
	req, err := h.svc.InitiateDeletion(c.Request.Context(), p.UserID, tc.OrganizationID, body.ConfirmationPhrase)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"message":    "a confirmation link has been sent to " + req.Email,
		"expires_at": req.ExpiresAt,
	})
}

// ConfirmDeletion handles POST /organizations/:orgId/delete/confirm.
func (h *Handler) ConfirmDeletion(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	tc := middleware.MustTenant(c)
	var body DeletionRequestBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Token == "" {
		response.BadRequest(c, "confirmation_phrase and token required")
		return
	}
	err := h.svc.ConfirmDeletion(c.Request.Context(), p.UserID, tc.OrganizationID, body.Token, body.ConfirmationPhrase)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "organization deleted"})
}

func parseUserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}
