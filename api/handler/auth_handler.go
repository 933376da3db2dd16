package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"consultorio/api/middleware"
	"consultorio/internal/dto"
	"consultorio/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type AuthHandler struct {
	Service           *service.AuthService
	Validate          *validator.Validate
	Logger            logrus.FieldLogger
	RefreshCookieName string
	SessionCookieName string
	CookieDomain      string
	SecureCookies     bool
	SameSite          http.SameSite
}

func NewAuthHandler(svc *service.AuthService, validate *validator.Validate, logger logrus.FieldLogger) *AuthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthHandler{
		Service:           svc,
		Validate:          validate,
		Logger:            logger,
		RefreshCookieName: "refresh_token",
		SessionCookieName: "session_id",
		SecureCookies:     true,
		SameSite:          http.SameSiteStrictMode,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req dto.RegisterRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	input := service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Meta:      requestMeta(c, req.Device),
	}
	result, err := h.Service.Register(c.Request().Context(), input)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	h.setSessionCookies(c, result)
	return c.JSON(http.StatusCreated, dto.SessionResponseFromResult(result))
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	input := service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Meta:     requestMeta(c, req.Device),
	}
	result, err := h.Service.Login(c.Request().Context(), input)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	if !result.MFARequired {
		h.setSessionCookies(c, result)
	}
	return c.JSON(http.StatusOK, dto.SessionResponseFromResult(result))
}

func (h *AuthHandler) LoginWithMFA(c echo.Context) error {
	var req dto.LoginMFARequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	input := service.LoginMFAInput{
		MFAToken: req.MFAToken,
		Code:     req.Code,
		Meta:     requestMeta(c, req.Device),
	}
	result, err := h.Service.LoginWithMFA(c.Request().Context(), input)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	h.setSessionCookies(c, result)
	return c.JSON(http.StatusOK, dto.SessionResponseFromResult(result))
}

// Refresh takes session_id and refresh_token from the JSON body, or from
// the cookies set at login when the body leaves them out.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req dto.RefreshRequest
	if err := decodeOptionalJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if req.SessionID == "" {
		req.SessionID = readCookie(c, h.SessionCookieName)
	}
	if req.RefreshToken == "" {
		req.RefreshToken = readCookie(c, h.RefreshCookieName)
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return h.writeServiceError(c, service.ErrInvalidSession)
	}

	input := service.RefreshInput{
		SessionID:    sessionID,
		RefreshToken: req.RefreshToken,
		Meta:         requestMeta(c, req.Device),
	}
	result, err := h.Service.Refresh(c.Request().Context(), input)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	h.setSessionCookies(c, result)
	return c.JSON(http.StatusOK, dto.SessionResponseFromResult(result))
}

func (h *AuthHandler) Logout(c echo.Context) error {
	sessionID, ok := middleware.SessionIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	message, err := h.Service.Logout(c.Request().Context(), sessionID, requestMeta(c, ""))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	h.clearSessionCookies(c)
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: message})
}

func (h *AuthHandler) LogoutAll(c echo.Context) error {
	sessionID, ok := middleware.SessionIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	message, err := h.Service.LogoutAll(c.Request().Context(), sessionID, requestMeta(c, ""))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	h.clearSessionCookies(c)
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: message})
}

func (h *AuthHandler) ListSessions(c echo.Context) error {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	views, err := h.Service.ListSessions(c.Request().Context(), principal.UserID, principal.SessionID)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.SessionSummariesFromViews(views))
}

func (h *AuthHandler) PasswordForgot(c echo.Context) error {
	var req dto.PasswordForgotRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.Service.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *AuthHandler) PasswordReset(c echo.Context) error {
	var req dto.PasswordResetRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.Service.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return h.writeServiceError(c, err)
	}
	h.clearSessionCookies(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) EnableMFA(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	url, err := h.Service.EnableMFA(c.Request().Context(), userID)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MFAEnableResponse{OTPAuthURL: url})
}

func (h *AuthHandler) VerifyMFA(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	var req dto.MFAVerifyRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.Service.VerifyMFA(c.Request().Context(), userID, req.Code); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) DisableMFA(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	if err := h.Service.DisableMFA(c.Request().Context(), userID); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) Me(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	user, err := h.Service.GetCurrentUser(c.Request().Context(), userID)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	if user == nil {
		return writeError(c, http.StatusNotFound, service.ErrUserNotFound)
	}
	return c.JSON(http.StatusOK, dto.UserResponseFromEntity(user))
}

func (h *AuthHandler) AdminListUsers(c echo.Context) error {
	limit, offset := parseLimitOffset(c)
	users, err := h.Service.ListUsers(c.Request().Context(), limit, offset)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.UserResponsesFromEntities(users))
}

func (h *AuthHandler) AdminRevokeUserSessions(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("invalid user id"))
	}
	if err := h.Service.RevokeUserSessions(c.Request().Context(), userID); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) AdminSessionSecurityLogs(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("invalid session id"))
	}
	logs, err := h.Service.SessionSecurityLogs(c.Request().Context(), sessionID)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.SecurityLogResponsesFromEntities(logs))
}

func (h *AuthHandler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}

func (h *AuthHandler) setSessionCookies(c echo.Context, result *service.LoginResult) {
	if result == nil || result.RefreshToken == "" {
		return
	}
	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	h.setCookie(c, h.RefreshCookieName, result.RefreshToken, maxAge, result.ExpiresAt)
	h.setCookie(c, h.SessionCookieName, result.SessionID.String(), maxAge, result.ExpiresAt)
}

func (h *AuthHandler) clearSessionCookies(c echo.Context) {
	h.setCookie(c, h.RefreshCookieName, "", -1, time.Time{})
	h.setCookie(c, h.SessionCookieName, "", -1, time.Time{})
}

func (h *AuthHandler) setCookie(c echo.Context, name string, value string, maxAge int, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth",
		Domain:   h.CookieDomain,
		MaxAge:   maxAge,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: h.SameSite,
	})
}

func readCookie(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func decodeJSON(c echo.Context, target any) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func decodeOptionalJSON(c echo.Context, target any) error {
	if c.Request().Body == nil {
		return nil
	}
	if err := decodeJSON(c, target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeError(c echo.Context, status int, err error) error {
	return c.JSON(status, dto.ErrorResponse{Message: err.Error()})
}

// sessionErrorCodes tells the client which failures end the session and
// which one may be retried.
var sessionErrorCodes = []struct {
	err  error
	code string
}{
	{service.ErrInvalidSession, "invalid_session"},
	{service.ErrSessionRevoked, "session_revoked"},
	{service.ErrSuspiciousActivity, "suspicious_activity"},
	{service.ErrRefreshTokenExpired, "refresh_token_expired"},
	{service.ErrSessionExpiredInactivity, "session_expired_inactivity"},
	{service.ErrIPMismatch, "ip_mismatch"},
	{service.ErrUserAgentMismatch, "user_agent_mismatch"},
	{service.ErrTooManyRequests, "too_many_requests"},
	{service.ErrInvalidCredentials, "invalid_credentials"},
	{service.ErrEmailAlreadyRegistered, "email_already_registered"},
}

func (h *AuthHandler) writeServiceError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrTooManyRequests):
		status = http.StatusTooManyRequests
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrInvalidSession),
		errors.Is(err, service.ErrSessionRevoked),
		errors.Is(err, service.ErrSuspiciousActivity),
		errors.Is(err, service.ErrRefreshTokenExpired),
		errors.Is(err, service.ErrSessionExpiredInactivity),
		errors.Is(err, service.ErrIPMismatch),
		errors.Is(err, service.ErrUserAgentMismatch),
		errors.Is(err, service.ErrInvalidMFACode):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		status = http.StatusConflict
	case errors.Is(err, service.ErrMFARequired):
		status = http.StatusPreconditionRequired
	case errors.Is(err, service.ErrMFANotConfigured):
		status = http.StatusFailedDependency
	case errors.Is(err, service.ErrUserNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.Logger.WithError(err).WithField("uri", c.Request().RequestURI).Error("unhandled service error")
		return c.JSON(status, dto.ErrorResponse{Message: "internal error"})
	}

	response := dto.ErrorResponse{Message: err.Error()}
	for _, candidate := range sessionErrorCodes {
		if errors.Is(err, candidate.err) {
			response.Message = candidate.err.Error()
			response.Code = candidate.code
			break
		}
	}
	if status == http.StatusUnauthorized && response.Code != "" && response.Code != "invalid_credentials" {
		h.clearSessionCookies(c)
	}
	return c.JSON(status, response)
}

func parseLimitOffset(c echo.Context) (int, int) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func requestMeta(c echo.Context, device string) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: stringPtr(c.RealIP()),
		UserAgent: stringPtr(c.Request().UserAgent()),
		Device:    stringPtr(device),
	}
}

func stringPtr(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
