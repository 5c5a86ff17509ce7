// Package admin wires the admin panel's HTTP routes and access control.
package admin

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/auth"
	"github.com/router-for-me/adminpanel/internal/config"
	"github.com/router-for-me/adminpanel/internal/errs"
	handlers "github.com/router-for-me/adminpanel/internal/http/api/admin/handlers"
	"github.com/router-for-me/adminpanel/internal/http/api/admin/permissions"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/metrics"
	"github.com/router-for-me/adminpanel/internal/ratelimit"
	"github.com/router-for-me/adminpanel/internal/settings"
	"github.com/router-for-me/adminpanel/internal/tokens"
	"gorm.io/gorm"
)

// Services bundles the dependencies of the admin routes.
type Services struct {
	DB          *gorm.DB
	Auth        *auth.Manager
	Activities  *activity.Service
	Tokens      *tokens.Store
	Mailer      handlers.AccountMailer
	Settings    *settings.Store
	RateLimiter *ratelimit.Manager
	Cookie      config.CookieConfig
}

// RegisterRoutes registers health, metrics and every /api route on r.
func RegisterRoutes(r *gin.Engine, svc Services) {
	if r == nil || svc.DB == nil {
		return
	}
	envelope.RegisterJSONFieldNames()

	r.Use(RequestLogger(), metrics.Instrument())

	healthHandler := handlers.NewHealthHandler(svc.DB)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")

	authHandler := handlers.NewAuthHandler(svc.DB, svc.Auth, svc.Activities, svc.Tokens, svc.Mailer, svc.Cookie)
	requireAuth := RequireAuth(svc.Auth, authHandler.CookieName())
	adminOnly := RequireRole(permissions.RoleAdmin)
	staff := RequireRole(permissions.RoleAdmin, permissions.RoleModerator)

	public := api.Group("/auth")
	public.POST("/login", RateLimit(svc.RateLimiter, ratelimit.ScopeLogin), authHandler.Login)
	public.POST("/failed-login", RateLimit(svc.RateLimiter, ratelimit.ScopeFailedLogin), authHandler.FailedLogin)
	public.POST("/forgot-password", RateLimit(svc.RateLimiter, ratelimit.ScopePasswordReset), authHandler.ForgotPassword)
	public.POST("/reset-password", RateLimit(svc.RateLimiter, ratelimit.ScopePasswordReset), authHandler.ResetPassword)
	public.GET("/verify-email", authHandler.VerifyEmailQuery)
	public.POST("/verify-email", authHandler.VerifyEmail)
	public.POST("/resend-verification", RateLimit(svc.RateLimiter, ratelimit.ScopeVerification), authHandler.ResendVerification)
	public.GET("/verify-token", authHandler.VerifyToken)
	public.POST("/accept-invite", RateLimit(svc.RateLimiter, ratelimit.ScopeInvite), authHandler.AcceptInvite)

	self := api.Group("/auth")
	self.Use(requireAuth)
	self.POST("/logout", authHandler.Logout)
	self.GET("/me", authHandler.Me)
	self.PATCH("/me", authHandler.UpdateMe)
	self.POST("/me/password", authHandler.ChangeMyPassword)
	self.GET("/activities", authHandler.Activities)
	self.GET("/sessions", authHandler.Sessions)
	self.DELETE("/sessions/:id", authHandler.RevokeSession)

	authed := api.Group("")
	authed.Use(requireAuth)

	userHandler := handlers.NewUserHandler(svc.DB, svc.Activities, svc.Tokens, svc.Auth, svc.Mailer)
	authed.GET("/users", staff, userHandler.List)
	authed.POST("/users", adminOnly, userHandler.Create)
	authed.GET("/users/:id", staff, userHandler.Get)
	authed.PATCH("/users/:id", adminOnly, userHandler.Update)
	authed.DELETE("/users/:id", adminOnly, userHandler.Delete)
	authed.POST("/users/:id/password", userHandler.ChangePassword)

	roleHandler := handlers.NewRoleHandler(svc.DB)
	authed.GET("/roles", roleHandler.List)

	activityHandler := handlers.NewActivityHandler(svc.Activities)
	authed.GET("/activities", staff, activityHandler.List)
	authed.GET("/activities/stats", staff, activityHandler.Stats)

	dashboardHandler := handlers.NewDashboardHandler(svc.DB, svc.Activities)
	authed.GET("/dashboard/stats", staff, dashboardHandler.Stats)

	if svc.Settings != nil {
		settingHandler := handlers.NewSettingHandler(svc.Settings)
		authed.POST("/settings", adminOnly, settingHandler.Create)
		authed.GET("/settings", adminOnly, settingHandler.List)
		authed.GET("/settings/:key", adminOnly, settingHandler.Get)
		authed.PUT("/settings/:key", adminOnly, settingHandler.Update)
		authed.DELETE("/settings/:key", adminOnly, settingHandler.Delete)
	}

	r.NoRoute(func(c *gin.Context) {
		envelope.Error(c, errs.NotFound("Route not found"))
	})
}

// RequireAuth validates the session token from the Authorization header or
// the session cookie and stores the caller's claims on the context.
func RequireAuth(manager *auth.Manager, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && cookieName != "" {
			if cookie, errCookie := c.Cookie(cookieName); errCookie == nil {
				token = strings.TrimSpace(cookie)
			}
		}
		if token == "" {
			envelope.Error(c, errs.Unauthorized(""))
			return
		}
		claims, errValidate := manager.ValidateToken(c.Request.Context(), token)
		if errValidate != nil {
			envelope.Error(c, errValidate)
			return
		}
		handlers.SetClaims(c, claims)
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// RequireRole rejects callers whose role is not one of roles. It must run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := handlers.ClaimsFrom(c)
		if !ok {
			envelope.Error(c, errs.Unauthorized(""))
			return
		}
		if _, okRole := allowed[claims.Role]; !okRole {
			envelope.Error(c, errs.Forbidden(""))
			return
		}
		c.Next()
	}
}
