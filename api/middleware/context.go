package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const contextPrincipalKey = "auth_principal"

// Principal is the caller identity taken from a verified access token.
type Principal struct {
	UserID    uuid.UUID
	Role      string
	SessionID uuid.UUID
}

func SetAuthContext(c echo.Context, userID uuid.UUID, role string, sessionID uuid.UUID) {
	c.Set(contextPrincipalKey, Principal{UserID: userID, Role: role, SessionID: sessionID})
}

func PrincipalFromContext(c echo.Context) (Principal, bool) {
	principal, ok := c.Get(contextPrincipalKey).(Principal)
	return principal, ok
}

func UserIDFromContext(c echo.Context) (uuid.UUID, bool) {
	principal, ok := PrincipalFromContext(c)
	return principal.UserID, ok
}

func RoleFromContext(c echo.Context) (string, bool) {
	principal, ok := PrincipalFromContext(c)
	return principal.Role, ok
}

func SessionIDFromContext(c echo.Context) (uuid.UUID, bool) {
	principal, ok := PrincipalFromContext(c)
	return principal.SessionID, ok
}
