package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/teamspace/backend/internal/guard"
	"github.com/teamspace/backend/internal/tenant"
	"github.com/teamspace/backend/pkg/response"
)

const (
	// ContextGuardRequest is the key for the guard.Request in gin context.
	ContextGuardRequest = "guard_request"
	// AccessTokenCookie carries the access token for browser clients.
	AccessTokenCookie = "access_token"
)

// Guard runs stages against the request. A guard.Request left on the context
// by an earlier Guard is continued, so route groups can add stages.
func Guard(stages ...guard.Stage) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := Request(c)
		if !ok {
			req = guard.Request{Token: bearerToken(c)}
		}
		req.OrgParam = c.Param("orgId")

		out, err := guard.Run(c.Request.Context(), req, stages...)
		if err != nil {
			response.Abort(c, err)
			return
		}
		c.Set(ContextGuardRequest, out)
		c.Next()
	}
}

// Request returns the guard request stored by Guard.
func Request(c *gin.Context) (guard.Request, bool) {
	v, ok := c.Get(ContextGuardRequest)
	if !ok {
		return guard.Request{}, false
	}
	req, ok := v.(guard.Request)
	return req, ok
}

// Principal returns the authenticated caller, if any.
func Principal(c *gin.Context) (*guard.Principal, bool) {
	req, ok := Request(c)
	if !ok || req.Principal == nil {
		return nil, false
	}
	return req.Principal, true
}

// MustPrincipal is Principal for routes behind Authenticate. It panics otherwise.
func MustPrincipal(c *gin.Context) *guard.Principal {
	p, ok := Principal(c)
	if !ok {
		panic("middleware: no principal on context")
	}
	return p
}

// Tenant returns the resolved organization context, if any.
func Tenant(c *gin.Context) (*tenant.Context, bool) {
	req, ok := Request(c)
	if !ok || req.Tenant == nil {
		return nil, false
	}
	return req.Tenant, true
}

// MustTenant is Tenant for routes behind ResolveTenant. It panics otherwise.
func MustTenant(c *gin.Context) *tenant.Context {
	tc, ok := Tenant(c)
	if !ok {
		panic("middleware: no tenant on context")
	}
	return tc
}

func bearerToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
