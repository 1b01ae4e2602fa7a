package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/infra/logger"
	"github.com/jumbojolt/identity/internal/usecase"
)

const keyRejectedMessage = "recovery key is invalid or has already been used"

// ErrorCase maps a sentinel error to an HTTP status code, error code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// identityErrorCases covers every usecase sentinel. ErrInvalidKey and
// ErrAlreadyUsed keep distinct codes but share one message.
var identityErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredential, Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: "invalid credentials"},
	{Err: usecase.ErrInvalidKey, Status: http.StatusUnauthorized, Code: "INVALID_KEY", Message: keyRejectedMessage},
	{Err: usecase.ErrAlreadyUsed, Status: http.StatusUnauthorized, Code: "ALREADY_USED", Message: keyRejectedMessage},
	{Err: usecase.ErrInvalidCode, Status: http.StatusUnauthorized, Code: "INVALID_CODE", Message: "backup code is invalid or has already been used"},
	{Err: usecase.ErrNotAnonymous, Status: http.StatusForbidden, Code: "NOT_ANONYMOUS", Message: "recovery keys are only available to anonymous accounts"},
	{Err: usecase.ErrVerificationFailed, Status: http.StatusUnauthorized, Code: "VERIFICATION_FAILED", Message: "verification failed"},
	{Err: usecase.ErrVerificationRequired, Status: http.StatusForbidden, Code: "VERIFICATION_REQUIRED", Message: "fresh verification required"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Code: "USER_NOT_FOUND", Message: "user not found"},
	{Err: usecase.ErrHandleTaken, Status: http.StatusConflict, Code: "HANDLE_TAKEN", Message: "handle already taken"},
	{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Code: "EMAIL_TAKEN", Message: "email already registered"},
	{Err: usecase.ErrInvalidHandle, Status: http.StatusBadRequest, Code: "INVALID_HANDLE", Message: usecase.ErrInvalidHandle.Error()},
	{Err: usecase.ErrInvalidEmail, Status: http.StatusBadRequest, Code: "INVALID_EMAIL", Message: "invalid email address"},
	{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Code: "WEAK_PASSWORD", Message: usecase.ErrPasswordPolicyViolation.Error()},
	{Err: usecase.ErrWeakSecretKey, Status: http.StatusBadRequest, Code: "WEAK_SECRET_KEY", Message: "secret key must be at least 6 characters"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackCode, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Code, cs.Message))
			return
		}
	}

	logger.WithContext(c.Request.Context()).Error("unhandled request error",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackCode, fallbackMessage))
}

func respondError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, identityErrorCases, http.StatusInternalServerError, "INTERNAL", "internal server error")
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, "INVALID_REQUEST", message))
}
