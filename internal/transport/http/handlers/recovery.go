package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/transport/http/middleware"
	"github.com/jumbojolt/identity/internal/usecase"
)

// RecoveryKeyService mints recovery keys and lists their metadata.
type RecoveryKeyService interface {
	Generate(ctx context.Context, userID string) (usecase.GeneratedRecoveryKey, error)
	History(ctx context.Context, userID string) ([]domain.RecoveryKey, error)
}

// RecoveryHandler exposes recovery key endpoints.
type RecoveryHandler struct {
	keys     RecoveryKeyService
	accounts AccountService
}

// NewRecoveryHandler constructs RecoveryHandler.
func NewRecoveryHandler(keys RecoveryKeyService, accounts AccountService) *RecoveryHandler {
	return &RecoveryHandler{keys: keys, accounts: accounts}
}

// RegisterRoutes binds /recovery-key routes.
func (h *RecoveryHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, redeemLimits []gin.HandlerFunc) {
	r.POST("/generate", requireAuth, h.generate)
	r.GET("/history", requireAuth, h.history)
	r.POST("/redeem", chain(redeemLimits, h.redeem)...)
}

func (h *RecoveryHandler) generate(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "UNAUTHENTICATED", "authentication required"))
		return
	}

	generated, err := h.keys.Generate(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusCreated, RecoveryKeyResponse{
		KeyDisplay: generated.KeyDisplay,
		QRPayload:  generated.QRPayload,
	})
}

func (h *RecoveryHandler) history(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "UNAUTHENTICATED", "authentication required"))
		return
	}

	keys, err := h.keys.History(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := RecoveryKeyHistoryResponse{Keys: make([]RecoveryKeyMetadata, 0, len(keys))}
	for _, key := range keys {
		resp.Keys = append(resp.Keys, newRecoveryKeyMetadata(key))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RecoveryHandler) redeem(c *gin.Context) {
	var req RecoveryKeyRedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "key_display is required")
		return
	}

	user, session, err := h.accounts.Login(c.Request.Context(), domain.IdentityRef{}, domain.RecoveryKeyCredential(req.KeyDisplay))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CredentialLoginResponse{
		UserID:  user.ID,
		Session: newSessionResponse(session),
	})
}
