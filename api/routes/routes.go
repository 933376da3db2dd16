package routes

import (
	"time"

	"consultorio/api/handler"
	"consultorio/api/middleware"
	"consultorio/internal/entity"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type Router struct {
	Echo           *echo.Echo
	Auth           *handler.AuthHandler
	AuthMiddleware middleware.AuthMiddleware
	AuthRate       *middleware.RateLimiter
	LoginRate      *middleware.RateLimiter
}

func NewRouter(e *echo.Echo, authHandler *handler.AuthHandler, authMiddleware middleware.AuthMiddleware) *Router {
	return &Router{
		Echo:           e,
		Auth:           authHandler,
		AuthMiddleware: authMiddleware,
		AuthRate:       middleware.NewRateLimiter(rate.Limit(5), 10, 5*time.Minute),
		LoginRate:      middleware.NewRateLimiter(rate.Limit(2), 4, 10*time.Minute),
	}
}

func (r *Router) RegisterRoutes() {
	e := r.Echo
	auth := r.AuthMiddleware
	admin := middleware.RequireRole(string(entity.UserRoleAdmin))

	e.POST("/auth/register", r.Auth.Register, r.AuthRate.Middleware())
	e.POST("/auth/login", r.Auth.Login, r.LoginRate.Middleware())
	e.POST("/auth/login/mfa", r.Auth.LoginWithMFA, r.LoginRate.Middleware())
	e.POST("/auth/refresh", r.Auth.Refresh, r.AuthRate.Middleware())
	e.POST("/auth/logout", r.Auth.Logout, auth.RequireAuth)
	e.POST("/auth/logout-all", r.Auth.LogoutAll, auth.RequireAuth)
	e.POST("/auth/password/forgot", r.Auth.PasswordForgot, r.LoginRate.Middleware())
	e.POST("/auth/password/reset", r.Auth.PasswordReset, r.AuthRate.Middleware())
	e.POST("/auth/mfa/enable", r.Auth.EnableMFA, auth.RequireActiveSession)
	e.POST("/auth/mfa/verify", r.Auth.VerifyMFA, auth.RequireActiveSession)
	e.POST("/auth/mfa/disable", r.Auth.DisableMFA, auth.RequireActiveSession)
	e.GET("/auth/sessions", r.Auth.ListSessions, auth.RequireActiveSession)

	e.GET("/me", r.Auth.Me, auth.RequireActiveSession)
	e.GET("/admin/users", r.Auth.AdminListUsers, auth.RequireActiveSession, admin)
	e.POST("/admin/users/:id/revoke-sessions", r.Auth.AdminRevokeUserSessions, auth.RequireActiveSession, admin)
	e.GET("/admin/sessions/:id/security-logs", r.Auth.AdminSessionSecurityLogs, auth.RequireActiveSession, admin)
}
