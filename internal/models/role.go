package models

import (
	"time"

	"github.com/google/uuid"
)

// System role slugs created with every organization.
const (
	RoleSlugAdmin  = "admin"
	RoleSlugMember = "member"
)

// Role is an organization-scoped named set of permissions.
type Role struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Description    string    `json:"description"`
	IsSystemRole   bool      `json:"is_system_role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RoleDetail is a role with its permission slugs and member count.
type RoleDetail struct {
	Role
	Permissions []string `json:"permissions"`
	MemberCount int      `json:"member_count"`
}

// Permission is a global capability identified by slug.
type Permission struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
}

// Permission slugs.
const (
	PermOrganizationManage = "organization.manage"
	PermMembersRead        = "members.read"
	PermMembersInvite      = "members.invite"
	PermMembersManage      = "members.manage"
	PermRolesRead          = "roles.read"
	PermRolesManage        = "roles.manage"
	PermTasksRead          = "tasks.read"
	PermTasksCreate        = "tasks.create"
	PermTasksUpdate        = "tasks.update"
	PermTasksDelete        = "tasks.delete"
	PermTasksAssign        = "tasks.assign"
	PermCommentsCreate     = "comments.create"
	PermCommentsUpdate     = "comments.update"
	PermCommentsDelete     = "comments.delete"
)

// BuiltinPermissions is the global permission catalog.
var BuiltinPermissions = []Permission{
	{Slug: PermOrganizationManage, Name: "Manage organization", Category: "organization", Description: "Edit organization settings"},
	{Slug: PermMembersRead, Name: "View members", Category: "members", Description: "List organization members"},
	{Slug: PermMembersInvite, Name: "Invite members", Category: "members", Description: "Send, resend and revoke invitations"},
	{Slug: PermMembersManage, Name: "Manage members", Category: "members", Description: "Change member roles, suspend and remove members"},
	{Slug: PermRolesRead, Name: "View roles", Category: "roles", Description: "List roles and their permissions"},
	{Slug: PermRolesManage, Name: "Manage roles", Category: "roles", Description: "Create, edit and delete custom roles"},
	{Slug: PermTasksRead, Name: "View tasks", Category: "tasks"},
	{Slug: PermTasksCreate, Name: "Create tasks", Category: "tasks"},
	{Slug: PermTasksUpdate, Name: "Update tasks", Category: "tasks"},
	{Slug: PermTasksDelete, Name: "Delete tasks", Category: "tasks"},
	{Slug: PermTasksAssign, Name: "Assign tasks", Category: "tasks"},
	{Slug: PermCommentsCreate, Name: "Create comments", Category: "comments"},
	{Slug: PermCommentsUpdate, Name: "Update comments", Category: "comments"},
	{Slug: PermCommentsDelete, Name: "Delete comments", Category: "comments"},
}

// DefaultMemberPermissions are granted to the member role of a new organization.
var DefaultMemberPermissions = []string{
	PermMembersRead,
	PermRolesRead,
	PermTasksRead,
	PermTasksCreate,
	PermTasksUpdate,
	PermCommentsCreate,
	PermCommentsUpdate,
}
