package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/assignment"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/reference"
	"github.com/mikepea/bylines/pkg/bylines/reverseindex"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler handles admin requests
type Handler struct {
	db          *gorm.DB
	assignments *assignment.Store
	finder      *reverseindex.Finder
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB, assignments *assignment.Store, finder *reverseindex.Finder) *Handler {
	return &Handler{db: db, assignments: assignments, finder: finder}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID          uint   `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Nicename    string `json:"nicename"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
	ItemCount   int64  `json:"item_count"`
	CreditCount int64  `json:"credit_count"`
	LeadCount   int64  `json:"lead_count"`
	GroupCount  int64  `json:"group_count"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers     int64    `json:"total_users"`
	TotalGroups    int64    `json:"total_groups"`
	TotalItems     int64    `json:"total_items"`
	PublishedItems int64    `json:"published_items"`
	AssignedItems  int64    `json:"assigned_items"`
	GroupCredits   int64    `json:"group_credits"`
	AdminUsers     int64    `json:"admin_users"`
	ReverseIndex   string   `json:"reverse_index"`
	ContentTypes   []string `json:"content_types"`
}

func (h *Handler) userResponse(user models.User) UserResponse {
	var itemCount, creditCount, leadCount, groupCount int64
	h.db.Model(&models.Item{}).Where("author_id = ?", user.ID).Count(&itemCount)
	h.db.Model(&models.ItemReference{}).
		Where("kind = ? AND ref_id = ?", string(reference.KindUser), user.ID).
		Distinct("item_id").Count(&creditCount)
	// position 0 is the entry the byline link points at
	h.db.Model(&models.ItemReference{}).
		Where("kind = ? AND ref_id = ? AND position = 0", string(reference.KindUser), user.ID).
		Count(&leadCount)
	h.db.Model(&models.GroupMembership{}).Where("user_id = ?", user.ID).Count(&groupCount)

	return UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Nicename:    user.Nicename,
		Role:        string(user.Role),
		CreatedAt:   user.CreatedAt.UTC().Format(time.RFC3339),
		ItemCount:   itemCount,
		CreditCount: creditCount,
		LeadCount:   leadCount,
		GroupCount:  groupCount,
	}
}

// ListUsers returns all users (admin only)
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC").Order("id DESC")

	// Optional search by email or name
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	// Optional filter by role
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = h.userResponse(user)
	}

	c.JSON(http.StatusOK, responses)
}

func (h *Handler) loadUser(c *gin.Context) (models.User, bool) {
	var user models.User
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return user, false
	}
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return user, false
	}
	return user, true
}

// GetUser returns a single user by ID (admin only)
func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.userResponse(user))
}

// UpdateUser updates a user's display name or role (admin only)
func (h *Handler) UpdateUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from demoting themselves
	currentUserID, _ := auth.GetUserID(c)
	if user.ID == currentUserID && req.Role != nil && models.Role(*req.Role) != models.RoleAdministrator {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		if *req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name can't be empty"})
			return
		}
		updates["name"] = *req.Name
	}
	if req.Role != nil {
		if !auth.ValidRole(models.Role(*req.Role)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}
		updates["role"] = *req.Role
	}

	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		logger.L.Info("user updated by admin", zap.Uint("user_id", user.ID), zap.Uint("admin_id", currentUserID))
	}

	h.db.First(&user, user.ID)
	c.JSON(http.StatusOK, h.userResponse(user))
}

// DeleteUser soft-deletes a user (admin only). Assignments naming the user
// are kept; bylines skip ids that no longer resolve.
func (h *Handler) DeleteUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	// Prevent admin from deleting themselves
	currentUserID, _ := auth.GetUserID(c)
	if user.ID == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// GetStats returns system-wide statistics (admin only)
func (h *Handler) GetStats(c *gin.Context) {
	stats := StatsResponse{
		ReverseIndex: string(h.finder.Strategy()),
		ContentTypes: h.assignments.ContentTypes(),
	}

	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.Group{}).Count(&stats.TotalGroups)
	h.db.Model(&models.Item{}).Count(&stats.TotalItems)
	h.db.Model(&models.Item{}).Where("status = ?", models.StatusPublish).Count(&stats.PublishedItems)
	h.db.Model(&models.User{}).Where("role = ?", models.RoleAdministrator).Count(&stats.AdminUsers)

	h.db.Model(&models.ItemReference{}).Distinct("item_id").Count(&stats.AssignedItems)
	h.db.Model(&models.ItemReference{}).Where("kind = ?", string(reference.KindGroup)).Count(&stats.GroupCredits)

	c.JSON(http.StatusOK, stats)
}

// Reindex rebuilds the reference index from the stored assignments
// @Summary Rebuild the author reference index
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]int
// @Security BearerAuth
// @Router /admin/reindex [post]
func (h *Handler) Reindex(c *gin.Context) {
	n, err := h.assignments.Reindex(c.Request.Context())
	if err != nil {
		logger.L.Error("reindex failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rebuild index"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": n})
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.POST("/reindex", h.Reindex)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
}
