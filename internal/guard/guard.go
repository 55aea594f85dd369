// Package guard authorizes requests through an ordered list of stages. Each
// stage receives the request value produced by the previous one and either
// returns an enriched copy or rejects it.
package guard

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/obs"
	"github.com/teamspace/backend/internal/tenant"
	"github.com/teamspace/backend/pkg/apperr"
)

var (
	ErrAuthenticationRequired = apperr.Unauthorized("authentication required")
	ErrOrganizationRequired   = apperr.Forbidden("organization context required")
	ErrInvalidOrganizationID  = apperr.BadRequest("invalid organization id")
)

// Principal is the authenticated caller as described by the access token.
type Principal struct {
	UserID         uuid.UUID
	SessionID      uuid.UUID
	OrganizationID *uuid.UUID
	RoleName       string
}

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*Principal, error)
}

// TenantResolver is the subset of tenant.Resolver the stages use.
type TenantResolver interface {
	Resolve(ctx context.Context, userID, orgID uuid.UUID, withPermissions bool) (*tenant.Context, error)
	VerifyMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error)
	Organization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	MemberPermissions(ctx context.Context, userID, orgID uuid.UUID) ([]string, error)
}

// Request is the value threaded through the stages.
type Request struct {
	Token     string
	OrgParam  string
	Principal *Principal
	Tenant    *tenant.Context
}

// Stage is one named step of the pipeline.
type Stage struct {
	Name string
	Fn   func(ctx context.Context, req Request) (Request, error)
}

// Run applies stages in order and stops at the first rejection.
func Run(ctx context.Context, req Request, stages ...Stage) (Request, error) {
	for _, s := range stages {
		next, err := s.Fn(ctx, req)
		if err != nil {
			obs.GuardDenied(s.Name)
			return req, err
		}
		req = next
	}
	return req, nil
}

// Authenticate verifies the bearer token.
func Authenticate(v TokenVerifier) Stage {
	return Stage{Name: "authenticate", Fn: func(_ context.Context, req Request) (Request, error) {
		if req.Token == "" {
			return req, ErrAuthenticationRequired
		}
		p, err := v.VerifyAccessToken(req.Token)
		if err != nil {
			return req, err
		}
		req.Principal = p
		return req, nil
	}}
}

// ResolveTenant attaches the organization context. The organization comes
// from the route parameter, falling back to the token. When the token already
// names that organization its role name is trusted, but the membership is
// still checked to be active and the organization available. Without an organization the request is
// rejected if required is set and passed through otherwise.
func ResolveTenant(r TenantResolver, required bool) Stage {
	return Stage{Name: "tenant", Fn: func(ctx context.Context, req Request) (Request, error) {
		p := req.Principal
		if p == nil {
			return req, ErrAuthenticationRequired
		}
		var orgID uuid.UUID
		switch {
		case req.OrgParam != "":
			id, err := uuid.Parse(req.OrgParam)
			if err != nil {
				return req, ErrInvalidOrganizationID
			}
			orgID = id
		case p.OrganizationID != nil:
			orgID = *p.OrganizationID
		default:
			if required {
				return req, ErrOrganizationRequired
			}
			return req, nil
		}

		if p.OrganizationID != nil && *p.OrganizationID == orgID && p.RoleName != "" {
			m, err := r.VerifyMembership(ctx, p.UserID, orgID)
			if err != nil {
				return req, err
			}
			if _, err := r.Organization(ctx, orgID); err != nil {
				return req, err
			}
			req.Tenant = &tenant.Context{
				OrganizationID: orgID,
				Role:           tenant.Role{ID: m.RoleID, Name: p.RoleName},
			}
			return req, nil
		}

		tc, err := r.Resolve(ctx, p.UserID, orgID, false)
		if err != nil {
			return req, err
		}
		req.Tenant = tc
		return req, nil
	}}
}

// RequireRoles admits callers whose role name exactly matches one of names.
func RequireRoles(names ...string) Stage {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	denied := apperr.Forbidden(requirement("role", "roles", names))
	return Stage{Name: "role", Fn: func(_ context.Context, req Request) (Request, error) {
		if req.Tenant == nil {
			return req, ErrOrganizationRequired
		}
		if _, ok := allowed[req.Tenant.Role.Name]; !ok {
			return req, denied
		}
		return req, nil
	}}
}

// RequirePermissions admits callers whose current role grants at least one of
// slugs. Permissions are always read live.
func RequirePermissions(r TenantResolver, slugs ...string) Stage {
	denied := apperr.Forbidden(requirement("permission", "permissions", slugs))
	return Stage{Name: "permission", Fn: func(ctx context.Context, req Request) (Request, error) {
		if req.Principal == nil {
			return req, ErrAuthenticationRequired
		}
		if req.Tenant == nil {
			return req, ErrOrganizationRequired
		}
		perms, err := r.MemberPermissions(ctx, req.Principal.UserID, req.Tenant.OrganizationID)
		if err != nil {
			return req, err
		}
		if !anyOf(perms, slugs) {
			return req, denied
		}
		tc := *req.Tenant
		tc.Role.Permissions = perms
		req.Tenant = &tc
		return req, nil
	}}
}

// requirement names what a denied caller lacks, e.g. "requires role: admin".
func requirement(singular, plural string, names []string) string {
	if len(names) == 1 {
		return "requires " + singular + ": " + names[0]
	}
	return "requires one of " + plural + ": " + strings.Join(names, ", ")
}

func anyOf(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
