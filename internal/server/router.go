package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/watchlogapp/watchlog-server/internal/entries"
	"github.com/watchlogapp/watchlog-server/internal/users"
	"go.uber.org/zap"
)

const userIDContextKey = "watchlog_user_id"

var (
	errMissingAccountsService = errors.New("accounts service dependency required")
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingEntriesService  = errors.New("entries service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates the bearer tokens carrying user identity.
type TokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies lists everything the HTTP handler needs.
type Dependencies struct {
	Accounts     *users.Service
	TokenManager TokenManager
	Entries      *entries.Service
	Logger       *zap.Logger
}

// NewHTTPHandler wires the REST surface: open auth endpoints plus a
// token-protected entries group.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Accounts == nil {
		return nil, errMissingAccountsService
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Entries == nil {
		return nil, errMissingEntriesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		accounts: deps.Accounts,
		tokens:   deps.TokenManager,
		entries:  deps.Entries,
		logger:   logger,
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/entries", handler.handleListEntries)
	protected.POST("/entries", handler.handleCreateEntry)
	protected.GET("/entries/:id", handler.handleGetEntry)
	protected.PUT("/entries/:id", handler.handleUpdateEntry)
	protected.DELETE("/entries/:id", handler.handleDeleteEntry)

	return router, nil
}

type httpHandler struct {
	accounts *users.Service
	tokens   TokenManager
	entries  *entries.Service
	logger   *zap.Logger
}

type registerRequestPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.accounts.Register(c.Request.Context(), request.Email, request.Password, request.DisplayName)
	if errors.Is(err, users.ErrInvalidEmail) || errors.Is(err, users.ErrWeakPassword) || errors.Is(err, users.ErrEmailTaken) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("account registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}

	h.issueTokenResponse(c, account.ID)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.accounts.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	h.issueTokenResponse(c, account.ID)
}

func (h *httpHandler) issueTokenResponse(c *gin.Context, userID string) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type listResponsePayload struct {
	Items    []entries.EntryView `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

func (h *httpHandler) handleListEntries(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	params := entries.ListParams{
		Search:    c.Query("q"),
		Type:      c.Query("type"),
		SubType:   c.Query("sub_type"),
		Status:    c.Query("status"),
		Tag:       c.Query("tag"),
		Sort:      c.Query("sort"),
		Direction: c.Query("dir"),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "page_size"),
	}

	query, err := entries.ParseListQuery(params)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	items, total, err := h.entries.ListEntries(c.Request.Context(), userID, query)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, listResponsePayload{
		Items:    items,
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
}

type createEntryPayload struct {
	Title   string   `json:"title"`
	Type    string   `json:"type"`
	SubType string   `json:"sub_type"`
	Status  string   `json:"status"`
	Rating  *float64 `json:"rating"`
	Notes   string   `json:"notes"`
	Tags    []string `json:"tags"`
}

func (h *httpHandler) handleCreateEntry(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createEntryPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	draft, err := decodeDraft(request)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	view, err := h.entries.CreateEntry(c.Request.Context(), userID, draft)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *httpHandler) handleGetEntry(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	view, err := h.entries.GetEntry(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

type updateEntryPayload struct {
	Title   *string   `json:"title"`
	Type    *string   `json:"type"`
	SubType *string   `json:"sub_type"`
	Status  *string   `json:"status"`
	Rating  *float64  `json:"rating"`
	Notes   *string   `json:"notes"`
	Tags    *[]string `json:"tags"`
	Version *int64    `json:"version"`
}

func (h *httpHandler) handleUpdateEntry(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request updateEntryPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	patch, err := decodePatch(request)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	view, err := h.entries.UpdateEntry(c.Request.Context(), userID, c.Param("id"), patch)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleDeleteEntry(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.entries.DeleteEntry(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		// Expired tokens are routine client behavior, not an operational event.
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func decodeDraft(payload createEntryPayload) (entries.EntryDraft, error) {
	mediaType, err := entries.ParseMediaType(payload.Type)
	if err != nil {
		return entries.EntryDraft{}, err
	}
	status, err := entries.ParseWatchStatus(payload.Status)
	if err != nil {
		return entries.EntryDraft{}, err
	}

	draft := entries.EntryDraft{
		Title:     payload.Title,
		MediaType: mediaType,
		Status:    status,
		Rating:    payload.Rating,
		Notes:     payload.Notes,
		Tags:      payload.Tags,
	}
	if strings.TrimSpace(payload.SubType) != "" {
		subType, err := entries.ParseMediaSubType(payload.SubType)
		if err != nil {
			return entries.EntryDraft{}, err
		}
		draft.SubType = &subType
	}
	return draft, nil
}

func decodePatch(payload updateEntryPayload) (entries.EntryPatch, error) {
	patch := entries.EntryPatch{
		Title:   payload.Title,
		Rating:  payload.Rating,
		Notes:   payload.Notes,
		Tags:    payload.Tags,
		Version: payload.Version,
	}
	if payload.Type != nil {
		mediaType, err := entries.ParseMediaType(*payload.Type)
		if err != nil {
			return entries.EntryPatch{}, err
		}
		patch.MediaType = &mediaType
	}
	if payload.SubType != nil {
		subType, err := entries.ParseMediaSubType(*payload.SubType)
		if err != nil {
			return entries.EntryPatch{}, err
		}
		patch.SubType = &subType
	}
	if payload.Status != nil {
		status, err := entries.ParseWatchStatus(*payload.Status)
		if err != nil {
			return entries.EntryPatch{}, err
		}
		patch.Status = &status
	}
	return patch, nil
}

// respondDomainError maps the core outcome taxonomy onto HTTP statuses.
// Infrastructure faults fall through to a 500 carrying the operation code.
func (h *httpHandler) respondDomainError(c *gin.Context, err error) {
	var domainErr *entries.Error
	if errors.As(err, &domainErr) {
		status := http.StatusInternalServerError
		switch domainErr.Kind {
		case entries.KindValidation:
			status = http.StatusBadRequest
		case entries.KindNotFound:
			status = http.StatusNotFound
		case entries.KindConflict:
			status = http.StatusConflict
		case entries.KindUnauthorized:
			status = http.StatusUnauthorized
		}
		body := gin.H{"error": string(domainErr.Kind), "message": domainErr.Message}
		if domainErr.Field != "" {
			body["field"] = domainErr.Field
		}
		if len(domainErr.Allowed) > 0 {
			body["allowed"] = domainErr.Allowed
		}
		c.JSON(status, body)
		return
	}

	h.logger.Error("entries request failed", zap.Error(err))
	var serviceErr *entries.ServiceError
	if errors.As(err, &serviceErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": serviceErr.Code()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func queryInt(c *gin.Context, key string) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
