package groups

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/assignment"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/identity"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler handles group-related requests
type Handler struct {
	db  *gorm.DB
	dir *identity.Directory
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB, dir *identity.Directory) *Handler {
	return &Handler{db: db, dir: dir}
}

// RESTError is the structured error body used by the editor endpoints
type RESTError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Data    RESTErrorData `json:"data"`
}

// RESTErrorData carries the HTTP status of a RESTError
type RESTErrorData struct {
	Status int `json:"status"`
}

func groupsNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, RESTError{
		Code:    "user_groups_not_found",
		Message: "User groups taxonomy not found",
		Data:    RESTErrorData{Status: http.StatusNotFound},
	})
}

// GroupResponse is the editor-facing view of a group
type GroupResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func toResponses(groups []identity.GroupInfo) []GroupResponse {
	out := make([]GroupResponse, len(groups))
	for i, g := range groups {
		out[i] = GroupResponse{ID: g.ID, Name: assignment.SanitizeText(g.Name), Slug: g.Slug}
	}
	return out
}

// UserGroups lists every group for the editor's group picker
// @Summary List user groups
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Failure 404 {object} RESTError "Groups are not available"
// @Security BearerAuth
// @Router /user-groups [get]
func (h *Handler) UserGroups(c *gin.Context) {
	groups, err := h.dir.ListGroups(c.Request.Context())
	if errors.Is(err, identity.ErrGroupsUnavailable) {
		groupsNotFound(c)
		return
	}
	if err != nil {
		logger.L.Error("failed to list groups", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}
	c.JSON(http.StatusOK, toResponses(groups))
}

// CurrentUserGroups lists the groups the acting user belongs to
// @Summary List the current user's groups
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Failure 404 {object} RESTError "Groups are not available"
// @Security BearerAuth
// @Router /current-user-groups [get]
func (h *Handler) CurrentUserGroups(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	groups, err := h.dir.GroupsOf(c.Request.Context(), userID)
	if errors.Is(err, identity.ErrGroupsUnavailable) {
		groupsNotFound(c)
		return
	}
	if err != nil {
		logger.L.Error("failed to list groups of user", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}
	c.JSON(http.StatusOK, toResponses(groups))
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// UpdateGroupRequest represents the request to update a group
type UpdateGroupRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// GroupDetailResponse represents a group in management responses
type GroupDetailResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	MemberCount int    `json:"member_count"`
}

func (h *Handler) detail(group models.Group) GroupDetailResponse {
	var memberCount int64
	h.db.Model(&models.GroupMembership{}).Where("group_id = ?", group.ID).Count(&memberCount)
	return GroupDetailResponse{
		ID:          group.ID,
		Name:        group.Name,
		Slug:        group.Slug,
		Description: group.Description,
		MemberCount: int(memberCount),
	}
}

// requireGroups answers 404 when the group directory is disabled
func (h *Handler) requireGroups(c *gin.Context) bool {
	if !h.dir.GroupsAvailable() {
		groupsNotFound(c)
		return false
	}
	return true
}

func (h *Handler) loadGroup(c *gin.Context) (models.Group, bool) {
	var group models.Group
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return group, false
	}
	if err := h.db.First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return group, false
	}
	return group, true
}

// List returns all groups with their member counts
func (h *Handler) List(c *gin.Context) {
	if !h.requireGroups(c) {
		return
	}
	var groups []models.Group
	if err := h.db.Order("name ASC").Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}
	out := make([]GroupDetailResponse, len(groups))
	for i, g := range groups {
		out[i] = h.detail(g)
	}
	c.JSON(http.StatusOK, out)
}

// Create creates a new group. The slug defaults to one derived from the name.
// @Summary Create a group
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupDetailResponse
// @Failure 409 {object} map[string]string "Slug already in use"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	if !h.requireGroups(c) {
		return
	}
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slug := auth.Nicename(req.Slug)
	if slug == "" {
		slug = auth.Nicename(req.Name)
	}
	if slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Group slug cannot be empty"})
		return
	}

	var existing models.Group
	if err := h.db.Where("slug = ?", slug).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Slug already in use"})
		return
	}

	group := models.Group{Name: req.Name, Slug: slug, Description: req.Description}
	if err := h.db.Create(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	c.JSON(http.StatusCreated, h.detail(group))
}

// Get returns a specific group
func (h *Handler) Get(c *gin.Context) {
	if !h.requireGroups(c) {
		return
	}
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.detail(group))
}

// Update updates a group
func (h *Handler) Update(c *gin.Context) {
	if !h.requireGroups(c) {
		return
	}
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != "" {
		group.Name = req.Name
	}
	if req.Description != "" {
		group.Description = req.Description
	}
	if slug := auth.Nicename(req.Slug); slug != "" && slug != group.Slug {
		var existing models.Group
		if err := h.db.Where("slug = ?", slug).First(&existing).Error; err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Slug already in use"})
			return
		}
		group.Slug = slug
	}

	if err := h.db.Save(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group"})
		return
	}

	c.JSON(http.StatusOK, h.detail(group))
}

// Delete deletes a group and its memberships. Assignments that still name
// the group keep the stale id; readers skip it.
func (h *Handler) Delete(c *gin.Context) {
	if !h.requireGroups(c) {
		return
	}
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&group).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

// RegisterEditorRoutes registers the read-only group lists used while editing items
func (h *Handler) RegisterEditorRoutes(rg *gin.RouterGroup) {
	rg.GET("/user-groups", h.UserGroups)
	rg.GET("/current-user-groups", h.CurrentUserGroups)
}

// RegisterRoutes registers group management routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
