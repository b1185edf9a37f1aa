// Package stubserver is an in-memory implementation of the footprint API
// contract. It backs the integration tests and the devserver command so the
// client core can be exercised without the production service; the real
// server stays authoritative for CO2e computation and persistence.
package stubserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdantlabs/footprint/internal/api"
)

const (
	ownerContextKey = "footprint_owner"
	userContextKey  = "footprint_user"

	detailAttributionRequired = "Either Authorization header or X-Session-ID header is required"
	stubTokenIssuer           = "footprint-stub"
)

var errMissingSecret = errors.New("stubserver: signing secret required")

// Dependencies bundles configuration for the stub server.
type Dependencies struct {
	SigningSecret []byte
	TokenTTL      time.Duration
	Logger        *zap.Logger
	Clock         func() time.Time
}

// NewHTTPHandler builds the gin handler implementing the API contract.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if len(deps.SigningSecret) == 0 {
		return nil, errMissingSecret
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	handler := &httpHandler{
		store:  newMemoryStore(),
		tokens: newTokenIssuer(deps.SigningSecret, stubTokenIssuer, deps.TokenTTL, clock),
		logger: logger,
		clock:  clock,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Session-ID", "apikey"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/api/v1/health", handler.handleHealth)
	router.GET("/api/v1/emission-factors", handler.handleEmissionFactors)
	router.GET("/api/v1/comparison/regions", handler.handleRegions)

	auth := router.Group("/auth/v1")
	auth.POST("/signup", handler.handleSignUp)
	auth.POST("/token", handler.handleToken)
	auth.POST("/logout", handler.handleLogout)
	auth.GET("/user", handler.handleAuthUser)

	attributed := router.Group("/api/v1")
	attributed.Use(handler.attributeRequest)
	attributed.GET("/activities", handler.handleListActivities)
	attributed.POST("/activities", handler.handleCreateActivity)
	attributed.PUT("/activities/:id", handler.handleUpdateActivity)
	attributed.DELETE("/activities/:id", handler.handleDeleteActivity)
	attributed.GET("/footprint/summary", handler.handleSummary)
	attributed.GET("/footprint/breakdown", handler.handleBreakdown)
	attributed.GET("/footprint/trend", handler.handleTrend)
	attributed.GET("/comparison/:code", handler.handleCompare)

	users := router.Group("/api/v1/users")
	users.Use(handler.requireUser)
	users.GET("/me", handler.handleCurrentUser)
	users.POST("/me/migrate-activities", handler.handleMigrate)

	return router, nil
}

type httpHandler struct {
	store  *memoryStore
	tokens *tokenIssuer
	logger *zap.Logger
	clock  func() time.Time
}

func detail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"detail": message})
}

// attributeRequest resolves the owner key: the bearer token identifies the
// account when present, otherwise the session header identifies the guest.
func (h *httpHandler) attributeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		subject, err := h.tokens.validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			h.logger.Warn("token validation failed", zap.Error(err))
			detail(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ownerContextKey, userOwnerKey(subject))
		c.Set(userContextKey, subject)
		c.Next()
		return
	}

	if sessionID := strings.TrimSpace(c.GetHeader("X-Session-ID")); sessionID != "" {
		c.Set(ownerContextKey, sessionOwnerKey(sessionID))
		c.Next()
		return
	}

	detail(c, http.StatusBadRequest, detailAttributionRequired)
	c.Abort()
}

// requireUser admits only bearer-authenticated requests.
func (h *httpHandler) requireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		detail(c, http.StatusUnauthorized, "Authorization header required")
		c.Abort()
		return
	}
	subject, err := h.tokens.validate(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		detail(c, http.StatusUnauthorized, "Invalid or expired token")
		c.Abort()
		return
	}
	c.Set(userContextKey, subject)
	c.Next()
}

func (h *httpHandler) owner(c *gin.Context) string {
	return c.GetString(ownerContextKey)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.Health{Status: "ok", Message: "footprint stub"})
}

func (h *httpHandler) handleEmissionFactors(c *gin.Context) {
	category := strings.TrimSpace(c.Query("category"))
	if category == "" {
		c.JSON(http.StatusOK, emissionFactors)
		return
	}
	filtered := make([]api.EmissionFactor, 0)
	for _, factor := range emissionFactors {
		if factor.Category == category {
			filtered = append(filtered, factor)
		}
	}
	c.JSON(http.StatusOK, filtered)
}

func (h *httpHandler) handleRegions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"regions": regions})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleSignUp(c *gin.Context) {
	var request credentialsRequest
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "email and password are required"})
		return
	}

	account, err := h.store.createUser(uuid.NewString(), request.Email, request.Password, h.clock().UTC())
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"msg": err.Error()})
		return
	}
	h.respondSession(c, account)
}

func (h *httpHandler) handleToken(c *gin.Context) {
	if c.Query("grant_type") != "password" {
		c.JSON(http.StatusBadRequest, gin.H{"error_description": "unsupported grant type"})
		return
	}
	var request credentialsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_description": "email and password are required"})
		return
	}
	account, err := h.store.authenticate(request.Email, request.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_description": err.Error()})
		return
	}
	h.respondSession(c, account)
}

func (h *httpHandler) respondSession(c *gin.Context, account *userAccount) {
	token, expiresIn, err := h.tokens.issue(account.ID, account.Email)
	if err != nil {
		h.logger.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  token,
		"token_type":    "bearer",
		"expires_in":    expiresIn,
		"refresh_token": uuid.NewString(),
		"user": gin.H{
			"id":         account.ID,
			"email":      account.Email,
			"created_at": account.CreatedAt,
		},
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	// The stub keeps no token denylist; sign-out only needs to succeed.
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAuthUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "authorization required"})
		return
	}
	subject, err := h.tokens.validate(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "invalid token"})
		return
	}
	account, exists := h.store.userByID(subject)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"msg": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": account.ID, "email": account.Email, "created_at": account.CreatedAt})
}

func (h *httpHandler) handleListActivities(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			detail(c, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, h.store.listByOwner(h.owner(c), limit))
}

func (h *httpHandler) handleCreateActivity(c *gin.Context) {
	var input api.ActivityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		detail(c, http.StatusBadRequest, "invalid activity payload")
		return
	}
	factor, found := lookupFactor(input.Category, input.Type)
	if !found {
		detail(c, http.StatusBadRequest, "unknown activity type "+input.Type)
		return
	}
	if input.Value <= 0 || input.Value > 10000 {
		detail(c, http.StatusBadRequest, "value must be positive and at most 10000")
		return
	}

	activity := api.Activity{
		ID:        uuid.NewString(),
		Category:  input.Category,
		Type:      input.Type,
		Value:     input.Value,
		CO2eKg:    round2(input.Value * factor.Factor),
		Date:      input.Date,
		Notes:     input.Notes,
		Metadata:  input.Metadata,
		CreatedAt: h.clock().UTC(),
	}
	h.store.insertActivity(h.owner(c), activity)
	c.JSON(http.StatusCreated, activity)
}

func (h *httpHandler) handleUpdateActivity(c *gin.Context) {
	var patch api.ActivityUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		detail(c, http.StatusBadRequest, "invalid activity payload")
		return
	}

	updated, err := h.store.updateActivity(h.owner(c), c.Param("id"), func(activity *api.Activity) {
		factor, found := lookupFactor(activity.Category, patch.Type)
		if found {
			activity.Type = patch.Type
			activity.CO2eKg = round2(patch.Value * factor.Factor)
		} else {
			activity.CO2eKg = round2(patch.Value * activity.CO2eKg / activity.Value)
		}
		activity.Value = patch.Value
		activity.Date = patch.Date
		activity.Notes = patch.Notes
	})
	if errors.Is(err, errActivityNotFound) {
		detail(c, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, errNotOwner) {
		detail(c, http.StatusForbidden, err.Error())
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteActivity(c *gin.Context) {
	err := h.store.deleteActivity(h.owner(c), c.Param("id"))
	if errors.Is(err, errActivityNotFound) {
		detail(c, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, errNotOwner) {
		detail(c, http.StatusForbidden, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) period(c *gin.Context) (string, bool) {
	period := c.DefaultQuery("period", "month")
	switch period {
	case "day", "week", "month", "year", "all":
		return period, true
	}
	detail(c, http.StatusBadRequest, "period must be one of day, week, month, year, all")
	return "", false
}

func (h *httpHandler) handleSummary(c *gin.Context) {
	period, ok := h.period(c)
	if !ok {
		return
	}
	owned := h.store.listByOwner(h.owner(c), 0)
	c.JSON(http.StatusOK, buildSummary(owned, period, h.clock()))
}

func (h *httpHandler) handleBreakdown(c *gin.Context) {
	period, ok := h.period(c)
	if !ok {
		return
	}
	owned := h.store.listByOwner(h.owner(c), 0)
	c.JSON(http.StatusOK, buildBreakdown(owned, period, h.clock()))
}

func (h *httpHandler) handleTrend(c *gin.Context) {
	period, ok := h.period(c)
	if !ok {
		return
	}
	owned := h.store.listByOwner(h.owner(c), 0)
	c.JSON(http.StatusOK, buildTrend(owned, period, h.clock()))
}

func (h *httpHandler) handleCompare(c *gin.Context) {
	period, ok := h.period(c)
	if !ok {
		return
	}
	region, found := lookupRegion(c.Param("code"))
	if !found {
		detail(c, http.StatusNotFound, "unknown region "+c.Param("code"))
		return
	}
	owned := h.store.listByOwner(h.owner(c), 0)
	c.JSON(http.StatusOK, buildComparison(owned, region, period, h.clock()))
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	account, exists := h.store.userByID(c.GetString(userContextKey))
	if !exists {
		detail(c, http.StatusNotFound, "User not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": account.ID, "email": account.Email, "created_at": account.CreatedAt})
}

type migrateRequest struct {
	SessionID string `json:"session_id"`
}

func (h *httpHandler) handleMigrate(c *gin.Context) {
	var request migrateRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.SessionID) == "" {
		detail(c, http.StatusBadRequest, "session_id is required")
		return
	}
	count := h.store.migrate(request.SessionID, c.GetString(userContextKey))
	h.logger.Info("migrated session activities",
		zap.String("session_id", request.SessionID),
		zap.Int("count", count))
	c.JSON(http.StatusOK, api.MigrationResult{MigratedCount: count})
}
