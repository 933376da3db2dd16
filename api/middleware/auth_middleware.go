package middleware

import (
	"net/http"
	"strings"
	"time"

	"consultorio/internal/repository"
	"consultorio/internal/utils"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type AuthMiddleware struct {
	JWT      *utils.JWTManager
	Sessions repository.SessionRepository
	Now      func() time.Time
}

// RequireAuth accepts any access token with a valid signature. It does not
// look at the session, so a client can still log out of a session that was
// closed elsewhere.
func (m AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.JWT == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		token := extractBearerToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		claims, err := m.JWT.ParseAccessToken(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		sessionID, err := uuid.Parse(claims.SessionID)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		SetAuthContext(c, userID, claims.Role, sessionID)
		return next(c)
	}
}

// RequireActiveSession is RequireAuth plus a check that the session behind
// the token is still open.
func (m AuthMiddleware) RequireActiveSession(next echo.HandlerFunc) echo.HandlerFunc {
	return m.RequireAuth(func(c echo.Context) error {
		if m.Sessions == nil {
			return next(c)
		}
		sessionID, ok := SessionIDFromContext(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		session, err := m.Sessions.FindByID(c.Request().Context(), sessionID)
		if err != nil {
			return err
		}
		if session == nil || session.Revoked || !session.ExpiresAt.After(m.now()) {
			return echo.NewHTTPError(http.StatusUnauthorized, "session closed")
		}
		return next(c)
	})
}

func (m AuthMiddleware) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func extractBearerToken(r *http.Request) string {
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		return ""
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
