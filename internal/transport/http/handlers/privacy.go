package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/transport/http/middleware"
	"github.com/jumbojolt/identity/internal/usecase"
)

// PrivacyService gates export and delete.
type PrivacyService interface {
	RequireVerification(ctx context.Context, userID string, action domain.PrivacyAction, cred domain.Credential) (domain.VerificationGrant, error)
	Export(ctx context.Context, userID, grantToken string) (usecase.ExportResult, error)
	Delete(ctx context.Context, userID, grantToken string) error
}

// PrivacyHandler exposes the GDPR endpoints.
type PrivacyHandler struct {
	privacy PrivacyService
}

// NewPrivacyHandler constructs PrivacyHandler.
func NewPrivacyHandler(privacy PrivacyService) *PrivacyHandler {
	return &PrivacyHandler{privacy: privacy}
}

// RegisterRoutes binds /gdpr routes; every route requires a session.
func (h *PrivacyHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, verifyLimits []gin.HandlerFunc) {
	r.Use(requireAuth)
	r.POST("/verify-export", chain(verifyLimits, h.verify(domain.PrivacyActionExport))...)
	r.POST("/verify-delete", chain(verifyLimits, h.verify(domain.PrivacyActionDelete))...)
	r.POST("/export", h.export)
	r.POST("/delete", h.delete)
}

func (h *PrivacyHandler) verify(action domain.PrivacyAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetAuthenticatedUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "UNAUTHENTICATED", "authentication required"))
			return
		}

		var req VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "type and a password or secret_key credential are required")
			return
		}
		cred, ok := secretCredential(req.Type, req.Password, req.SecretKey)
		if !ok {
			respondBadRequest(c, "credential value missing for type "+req.Type)
			return
		}

		grant, err := h.privacy.RequireVerification(c.Request.Context(), userID, action, cred)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, VerifyResponse{
			Authorized: true,
			GrantToken: grant.Token,
			ExpiresAt:  grant.ExpiresAt,
		})
	}
}

func (h *PrivacyHandler) export(c *gin.Context) {
	userID, req, ok := h.bindGrant(c)
	if !ok {
		return
	}

	result, err := h.privacy.Export(c.Request.Context(), userID, req.GrantToken)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, newExportResponse(result))
}

func (h *PrivacyHandler) delete(c *gin.Context) {
	userID, req, ok := h.bindGrant(c)
	if !ok {
		return
	}

	if err := h.privacy.Delete(c.Request.Context(), userID, req.GrantToken); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// bindGrant writes the error response itself when it returns false. A missing
// grant token is reported as VERIFICATION_REQUIRED rather than a bad request.
func (h *PrivacyHandler) bindGrant(c *gin.Context) (string, GrantRequest, bool) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "UNAUTHENTICATED", "authentication required"))
		return "", GrantRequest{}, false
	}

	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, usecase.ErrVerificationRequired)
		return "", GrantRequest{}, false
	}
	return userID, req, true
}
