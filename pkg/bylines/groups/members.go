package groups

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/models"
)

// MemberResponse represents a group member in API responses
type MemberResponse struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AddMemberRequest represents a request to add a member by email or id
type AddMemberRequest struct {
	Email  string `json:"email" binding:"omitempty,email"`
	UserID uint   `json:"user_id"`
}

// ListMembers returns all members of a group
func (h *Handler) ListMembers(c *gin.Context) {
	if !h.requireGroups(c) {
		return
	}
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}

	var memberships []models.GroupMembership
	if err := h.db.Preload("User").Where("group_id = ?", group.ID).Order("id ASC").Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	members := make([]MemberResponse, len(memberships))
	for i, m := range memberships {
		members[i] = MemberResponse{ID: m.User.ID, Email: m.User.Email, Name: m.User.Name}
	}

	c.JSON(http.StatusOK, members)
}

// AddMember adds a user to a group
func (h *Handler) AddMember(c *gin.Context) {
	if !h.requireGroups(c) {
		return
	}
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Email == "" && req.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email or user_id is required"})
		return
	}

	var targetUser models.User
	query := h.db
	if req.UserID != 0 {
		query = query.Where("id = ?", req.UserID)
	} else {
		query = query.Where("email = ?", req.Email)
	}
	if err := query.First(&targetUser).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var existingMembership models.GroupMembership
	if err := h.db.Where("user_id = ? AND group_id = ?", targetUser.ID, group.ID).First(&existingMembership).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
		return
	}

	membership := models.GroupMembership{UserID: targetUser.ID, GroupID: group.ID}
	if err := h.db.Create(&membership).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member"})
		return
	}

	c.JSON(http.StatusCreated, MemberResponse{ID: targetUser.ID, Email: targetUser.Email, Name: targetUser.Name})
}

// RemoveMember removes a user from a group
func (h *Handler) RemoveMember(c *gin.Context) {
	if !h.requireGroups(c) {
		return
	}
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	memberID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	result := h.db.Where("user_id = ? AND group_id = ?", memberID, group.ID).Delete(&models.GroupMembership{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove member"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// RegisterMemberRoutes registers member management routes
func (h *Handler) RegisterMemberRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/members", h.ListMembers)
	rg.POST("/:id/members", h.AddMember)
	rg.DELETE("/:id/members/:userId", h.RemoveMember)
}
