package roles

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/middleware"
	"github.com/teamspace/backend/pkg/response"
)

// Handler handles role and permission HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a roles handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateRoleRequest is the body for POST /organizations/:orgId/roles.
type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest is the body for PATCH /organizations/:orgId/roles/:roleId.
type UpdateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// AssignPermissionsRequest is the body for PUT /organizations/:orgId/roles/:roleId/permissions.
type AssignPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// ListPermissions handles GET /permissions.
func (h *Handler) ListPermissions(c *gin.Context) {
	perms, err := h.svc.ListPermissions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, perms)
}

// ListRoles handles GET /organizations/:orgId/roles.
func (h *Handler) ListRoles(c *gin.Context) {
	tc := middleware.MustTenant(c)
	list, err := h.svc.ListRoles(c.Request.Context(), tc.OrganizationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// CreateRole handles POST /organizations/:orgId/roles.
func (h *Handler) CreateRole(c *gin.Context) {
	tc := middleware.MustTenant(c)
	var body CreateRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name required")
		return
	}
	role, err := h.svc.Create(c.Request.Context(), tc.OrganizationID, CreateInput{
		Name:        body.Name,
		Description: body.Description,
		Permissions: body.Permissions,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, role)
}

// UpdateRole handles PATCH /organizations/:orgId/roles/:roleId.
func (h *Handler) UpdateRole(c *gin.Context) {
	tc := middleware.MustTenant(c)
	roleID, err := uuid.Parse(c.Param("roleId"))
	if err != nil {
		response.BadRequest(c, "invalid role id")
		return
	}
	var body UpdateRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	role, err := h.svc.Update(c.Request.Context(), tc.OrganizationID, roleID, UpdateInput{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, role)
}

// DeleteRole handles DELETE /organizations/:orgId/roles/:roleId.
func (h *Handler) DeleteRole(c *gin.Context) {
	tc := middleware.MustTenant(c)
	roleID, err := uuid.Parse(c.Param("roleId"))
	if err != nil {
		response.BadRequest(c, "invalid role id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), tc.OrganizationID, roleID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignPermissions handles PUT /organizations/:orgId/roles/:roleId/permissions.
func (h *Handler) AssignPermissions(c *gin.Context) {
	tc := middleware.MustTenant(c)
	roleID, err := uuid.Parse(c.Param("roleId"))
	if err != nil {
		response.BadRequest(c, "invalid role id")
		return
	}
	var body AssignPermissionsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	perms, err := h.svc.AssignPermissions(c.Request.Context(), tc.OrganizationID, roleID, body.Permissions)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"role_id": roleID, "permissions": perms})
}
