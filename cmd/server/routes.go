package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/teamspace/backend/internal/guard"
	"github.com/teamspace/backend/internal/middleware"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/obs"
	"github.com/teamspace/backend/pkg/response"
)

// healthCheck reports whether a dependency is reachable.
type healthCheck func(ctx context.Context) error

func (a *app) router(logger *zap.Logger, checks map[string]healthCheck) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(a.cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(obs.Instrument())

	router.GET("/health", health(checks))
	router.GET("/metrics", gin.WrapH(obs.Handler()))

	limited := a.limiter.Middleware()
	authenticate := middleware.Guard(guard.Authenticate(a.jwt))
	can := func(slugs ...string) gin.HandlerFunc {
		return middleware.Guard(guard.RequirePermissions(a.resolver, slugs...))
	}

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", limited, a.authHandler.Register)
		authGroup.POST("/login", limited, a.authHandler.Login)
		authGroup.POST("/refresh", a.authHandler.Refresh)
		authGroup.POST("/forgot-password", limited, a.authHandler.ForgotPassword)
		authGroup.POST("/verify-reset-token", a.authHandler.VerifyResetToken)
		authGroup.POST("/reset-password", limited, a.authHandler.ResetPassword)
		authGroup.POST("/accept-invitation", limited, a.inviteHandler.Accept)
		authGroup.GET("/google", a.authHandler.GoogleLogin)
		authGroup.GET("/google/callback", a.authHandler.GoogleCallback)

		session := authGroup.Group("", authenticate)
		session.POST("/logout", a.authHandler.Logout)
		session.GET("/me", a.authHandler.Me)
		session.GET("/profile", a.authHandler.GetProfile)
		session.PATCH("/profile", a.authHandler.UpdateProfile)
		session.POST("/change-password", a.authHandler.ChangePassword)
		session.GET("/organizations", a.authHandler.Organizations)
		session.POST("/select-organization", a.authHandler.SelectOrganization)
	}

	api := router.Group("", authenticate)
	{
		api.POST("/organizations", a.orgHandler.CreateOrganization)
		api.GET("/permissions", a.roleHandler.ListPermissions)

		org := api.Group("/organizations/:orgId", middleware.Guard(guard.ResolveTenant(a.resolver, true)))
		org.GET("", a.orgHandler.Get)

		org.GET("/members", can(models.PermMembersRead), a.orgHandler.ListMembers)
		org.PATCH("/members/:userId/role", can(models.PermMembersManage), a.orgHandler.UpdateMemberRole)
		org.PATCH("/members/:userId/status", can(models.PermMembersManage), a.orgHandler.UpdateMemberStatus)
		org.DELETE("/members/:userId", can(models.PermMembersManage), a.orgHandler.RemoveMember)

		org.GET("/invitations", can(models.PermMembersInvite), a.inviteHandler.List)
		org.POST("/invitations", can(models.PermMembersInvite), a.inviteHandler.Invite)
		org.POST("/invitations/:invitationId/resend", can(models.PermMembersInvite), a.inviteHandler.Resend)
		org.DELETE("/invitations/:invitationId", can(models.PermMembersInvite), a.inviteHandler.Revoke)

		org.GET("/roles", can(models.PermRolesRead), a.roleHandler.ListRoles)
		org.POST("/roles", can(models.PermRolesManage), a.roleHandler.CreateRole)
		org.PATCH("/roles/:roleId", can(models.PermRolesManage), a.roleHandler.UpdateRole)
		org.DELETE("/roles/:roleId", can(models.PermRolesManage), a.roleHandler.DeleteRole)
		org.PUT("/roles/:roleId/permissions", can(models.PermRolesManage), a.roleHandler.AssignPermissions)

		admin := middleware.Guard(guard.RequireRoles(models.RoleSlugAdmin))
		org.POST("/delete/initiate", admin, a.orgHandler.InitiateDeletion)
		org.POST("/delete/confirm", admin, a.orgHandler.ConfirmDeletion)
	}

	return router
}

func health(checks map[string]healthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{}
		healthy := true
		for name, check := range checks {
			if err := check(c.Request.Context()); err != nil {
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "up"
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, response.Body{Success: false, Data: status, Error: "dependency unavailable"})
			return
		}
		status["status"] = "ok"
		response.OK(c, status)
	}
}
