package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/transport/http/middleware"
	"github.com/jumbojolt/identity/internal/usecase"
)

// BackupCodeService manages backup code sets.
type BackupCodeService interface {
	GenerateSet(ctx context.Context, userID string) (usecase.GeneratedBackupCodes, error)
	Status(ctx context.Context, userID string) (domain.BackupCodeStatus, error)
}

// BackupCodeHandler exposes backup code endpoints.
type BackupCodeHandler struct {
	codes    BackupCodeService
	accounts AccountService
}

// NewBackupCodeHandler constructs BackupCodeHandler.
func NewBackupCodeHandler(codes BackupCodeService, accounts AccountService) *BackupCodeHandler {
	return &BackupCodeHandler{codes: codes, accounts: accounts}
}

// RegisterRoutes binds /backup-codes routes.
func (h *BackupCodeHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, loginLimits []gin.HandlerFunc) {
	r.POST("/generate", requireAuth, h.generate)
	r.GET("/status", requireAuth, h.status)
	r.POST("/login", chain(loginLimits, h.login)...)
}

func (h *BackupCodeHandler) generate(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "UNAUTHENTICATED", "authentication required"))
		return
	}

	set, err := h.codes.GenerateSet(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]BackupCodeItem, 0, len(set.Codes))
	for _, code := range set.Codes {
		items = append(items, BackupCodeItem{CodeDisplay: code})
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusCreated, BackupCodesResponse{Codes: items})
}

func (h *BackupCodeHandler) status(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "UNAUTHENTICATED", "authentication required"))
		return
	}

	status, err := h.codes.Status(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, BackupCodeStatusResponse{
		Total:       status.Total,
		Remaining:   status.Remaining,
		GeneratedAt: status.GeneratedAt,
	})
}

func (h *BackupCodeHandler) login(c *gin.Context) {
	var req BackupCodeLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "code is required")
		return
	}

	user, session, err := h.accounts.Login(c.Request.Context(), domain.IdentityRef{}, domain.BackupCodeCredential(req.Code))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CredentialLoginResponse{
		UserID:  user.ID,
		Session: newSessionResponse(session),
	})
}
