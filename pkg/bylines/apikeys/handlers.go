// Package apikeys issues long-lived keys for scripted clients such as
// importers and editorial tools, and authenticates requests carrying them.
package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// KeyLength is the length of the generated API key in bytes (32 bytes = 64 hex chars)
	KeyLength = 32
	// KeyPrefixLength is the number of characters to store as prefix for identification
	KeyPrefixLength = 8
)

// Handler handles API key requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new API keys handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// APIKeyResponse represents an API key in responses
type APIKeyResponse struct {
	ID         uint       `json:"id"`
	KeyPrefix  string     `json:"key_prefix"`
	Name       string     `json:"name"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CreateAPIKeyRequest represents a request to create an API key
type CreateAPIKeyRequest struct {
	Name string `json:"name" binding:"max=100"`
}

// CreateAPIKeyResponse includes the full key (only shown once)
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// generateAPIKey generates a new random API key
func generateAPIKey() (string, error) {
	bytes := make([]byte, KeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// hashAPIKey creates a SHA-256 hash of the API key
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func newResponse(k models.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		KeyPrefix:  k.KeyPrefix,
		Name:       k.Name,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// Create creates a new API key for the authenticated user
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateAPIKeyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	key, err := generateAPIKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate API key"})
		return
	}

	apiKey := models.APIKey{
		UserID:    userID,
		KeyHash:   hashAPIKey(key),
		KeyPrefix: key[:KeyPrefixLength],
		Name:      req.Name,
	}
	if err := h.db.Create(&apiKey).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API key"})
		return
	}

	// Return the full key - this is the only time it's visible
	c.JSON(http.StatusCreated, CreateAPIKeyResponse{APIKeyResponse: newResponse(apiKey), Key: key})
}

// List returns all API keys for the authenticated user
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var apiKeys []models.APIKey
	if err := h.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&apiKeys).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch API keys"})
		return
	}

	responses := make([]APIKeyResponse, len(apiKeys))
	for i, key := range apiKeys {
		responses[i] = newResponse(key)
	}

	c.JSON(http.StatusOK, responses)
}

// Delete revokes an API key
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	keyID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid API key ID"})
		return
	}

	var apiKey models.APIKey
	if err := h.db.Where("id = ? AND user_id = ?", keyID, userID).First(&apiKey).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return
	}

	// revoked keys must not keep blocking the unique hash
	if err := h.db.Unscoped().Delete(&apiKey).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete API key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
}

// ValidateAPIKey returns the owner of key. The user's current role applies,
// not the role it had when the key was issued.
func ValidateAPIKey(db *gorm.DB, key string) (models.User, error) {
	var apiKey models.APIKey
	if err := db.Preload("User").Where("key_hash = ?", hashAPIKey(key)).First(&apiKey).Error; err != nil {
		return models.User{}, err
	}
	if apiKey.User.ID == 0 {
		return models.User{}, gorm.ErrRecordNotFound
	}

	if err := db.Model(&models.APIKey{}).Where("id = ?", apiKey.ID).Update("last_used_at", time.Now()).Error; err != nil {
		logger.L.Debug("failed to record api key use", zap.Uint("api_key_id", apiKey.ID), zap.Error(err))
	}
	return apiKey.User, nil
}

// authenticate resolves a bearer credential and attaches the user to c.
// JWTs contain dots, API keys are hex strings without dots.
func authenticate(c *gin.Context, db *gorm.DB, token string) bool {
	if strings.Contains(token, ".") {
		claims, err := auth.ValidateToken(token)
		if err != nil {
			return false
		}
		c.Set(auth.ContextKeyUserID, claims.UserID)
		c.Set(auth.ContextKeyEmail, claims.Email)
		c.Set(auth.ContextKeyRole, claims.Role)
		return true
	}

	user, err := ValidateAPIKey(db, token)
	if err != nil {
		return false
	}
	c.Set(auth.ContextKeyUserID, user.ID)
	c.Set(auth.ContextKeyEmail, user.Email)
	c.Set(auth.ContextKeyRole, string(user.Role))
	return true
}

func bearer(c *gin.Context) (token string, found, ok bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false, false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", true, false
	}
	return parts[1], true, true
}

// CombinedAuthMiddleware returns a middleware that authenticates via JWT or API key
// Both are passed in the Authorization header as "Bearer <token>"
func CombinedAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, found, ok := bearer(c)
		if !found {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}
		if !authenticate(c, db, token) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the user for a valid JWT or API key and
// lets every other request through anonymously
func OptionalAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, _, ok := bearer(c); ok && !authenticate(c, db, token) {
			logger.L.Debug("ignoring invalid credential on public route")
		}
		c.Next()
	}
}

// RegisterRoutes registers API key routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/api-keys", h.Create)
	rg.GET("/api-keys", h.List)
	rg.DELETE("/api-keys/:id", h.Delete)
}
