package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/transport/http/middleware"
	"github.com/jumbojolt/identity/internal/usecase"
)

// AccountService is the account surface used by the HTTP layer.
type AccountService interface {
	Register(ctx context.Context, handle, email, password string) (domain.User, domain.Session, error)
	JoinAnonymous(ctx context.Context, handle, secretKey string) (usecase.AnonymousAccount, error)
	Login(ctx context.Context, ref domain.IdentityRef, cred domain.Credential) (domain.User, domain.Session, error)
	Profile(ctx context.Context, userID string) (domain.User, error)
}

// AccountHandler exposes onboarding, login and profile endpoints.
type AccountHandler struct {
	accounts AccountService
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(accounts AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// RegisterRoutes binds /auth routes. loginLimits guard the credential-checking endpoint.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, registerLimits, loginLimits []gin.HandlerFunc) {
	r.POST("/register", chain(registerLimits, h.register)...)
	r.POST("/anonymous", chain(registerLimits, h.anonymous)...)
	r.POST("/login", chain(loginLimits, h.login)...)
	r.GET("/me", requireAuth, h.me)
}

func (h *AccountHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "handle, email and password are required")
		return
	}

	user, session, err := h.accounts.Register(c.Request.Context(), req.Handle, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{
		User:    newUserResponse(user),
		Session: newSessionResponse(session),
	})
}

func (h *AccountHandler) anonymous(c *gin.Context) {
	var req AnonymousRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "invalid anonymous join payload")
		return
	}

	account, err := h.accounts.JoinAnonymous(c.Request.Context(), req.Handle, req.SecretKey)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusCreated, AnonymousResponse{
		User:      newUserResponse(account.User),
		SecretKey: account.SecretKey,
		Session:   newSessionResponse(account.Session),
	})
}

func (h *AccountHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "identifier and a password or secret_key credential are required")
		return
	}

	cred, ok := secretCredential(req.Type, req.Password, req.SecretKey)
	if !ok {
		respondBadRequest(c, "credential value missing for type "+req.Type)
		return
	}

	ref := domain.IdentityRef{Handle: strings.TrimSpace(req.Identifier)}
	user, session, err := h.accounts.Login(c.Request.Context(), ref, cred)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		User:    newUserResponse(user),
		Session: newSessionResponse(session),
	})
}

func (h *AccountHandler) me(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "UNAUTHENTICATED", "authentication required"))
		return
	}

	user, err := h.accounts.Profile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MeResponse{User: newUserResponse(user)})
}

func chain(pre []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(pre)+1)
	out = append(out, pre...)
	return append(out, handler)
}
