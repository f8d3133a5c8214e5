package items

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/assignment"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/byline"
	"github.com/mikepea/bylines/pkg/bylines/listing"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler handles item-related requests
type Handler struct {
	db          *gorm.DB
	assignments *assignment.Store
	bylines     *byline.Engine
	listings    *listing.Engine

	requireAuth  gin.HandlerFunc
	optionalAuth gin.HandlerFunc
}

// NewHandler creates a new items handler that authenticates with JWTs
func NewHandler(db *gorm.DB, assignments *assignment.Store, bylines *byline.Engine, listings *listing.Engine) *Handler {
	return &Handler{
		db:           db,
		assignments:  assignments,
		bylines:      bylines,
		listings:     listings,
		requireAuth:  auth.AuthMiddleware(),
		optionalAuth: auth.OptionalAuth(),
	}
}

// WithAuth replaces the middlewares RegisterRoutes uses to attach the user
func (h *Handler) WithAuth(required, optional gin.HandlerFunc) *Handler {
	h.requireAuth = required
	h.optionalAuth = optional
	return h
}

// CreateItemRequest represents the request to create an item
type CreateItemRequest struct {
	Type   string `json:"type" binding:"required,max=20"`
	Title  string `json:"title" binding:"required"`
	Slug   string `json:"slug" binding:"omitempty,max=200"`
	Status string `json:"status" binding:"omitempty,oneof=publish draft pending private"`
}

// UpdateItemRequest represents the request to update an item
type UpdateItemRequest struct {
	Title  string `json:"title"`
	Slug   string `json:"slug" binding:"omitempty,max=200"`
	Status string `json:"status" binding:"omitempty,oneof=publish draft pending private trash"`
}

// ItemResponse represents an item in API responses
type ItemResponse struct {
	ID        uint                   `json:"id"`
	Type      string                 `json:"type"`
	Status    string                 `json:"status"`
	Title     string                 `json:"title"`
	Slug      string                 `json:"slug"`
	AuthorID  uint                   `json:"author_id"`
	Byline    byline.Byline          `json:"byline"`
	Authors   *assignment.Assignment `json:"authors,omitempty"`
	CreatedAt string                 `json:"created_at"`
	UpdatedAt string                 `json:"updated_at"`
}

// NewItemResponse converts an item with its author loaded and computed byline
func NewItemResponse(item models.Item, b byline.Byline) ItemResponse {
	return ItemResponse{
		ID:        item.ID,
		Type:      item.Type,
		Status:    string(item.Status),
		Title:     item.Title,
		Slug:      item.Slug,
		AuthorID:  item.AuthorID,
		Byline:    b,
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) response(c *gin.Context, item models.Item) ItemResponse {
	return NewItemResponse(item, h.bylines.ItemByline(c.Request.Context(), item))
}

// loadItem finds the item named by the :id parameter and writes the error response if it can't
func (h *Handler) loadItem(c *gin.Context) (models.Item, bool) {
	var item models.Item
	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID"})
		return item, false
	}
	if err := h.db.Preload("Author").First(&item, itemID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return item, false
	}
	return item, true
}

// canRead reports whether the principal may see item. Published items are public.
func canRead(p auth.Principal, item models.Item) bool {
	return item.Status == models.StatusPublish || p.Can(auth.CapEditPosts)
}

// canEdit reports whether the principal may change item
func canEdit(p auth.Principal, item models.Item) bool {
	if !p.Can(auth.CapEditPosts) {
		return false
	}
	return item.AuthorID == p.UserID || p.Can(auth.CapEditOthersPosts)
}

// Create creates a new item owned by the current user. Items of a type that
// supports author assignment start out credited to their creator.
// @Summary Create an item
// @Tags items
// @Accept json
// @Produce json
// @Param request body CreateItemRequest true "Item details"
// @Success 201 {object} ItemResponse
// @Security BearerAuth
// @Router /items [post]
func (h *Handler) Create(c *gin.Context) {
	principal := auth.GetPrincipal(c)

	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := models.ItemStatus(req.Status)
	if status == "" {
		status = models.StatusDraft
	}
	slug := req.Slug
	if slug == "" {
		slug = auth.Nicename(req.Title)
	}

	item := models.Item{
		Type:     req.Type,
		Status:   status,
		Title:    req.Title,
		Slug:     slug,
		AuthorID: principal.UserID,
	}
	if err := h.db.Create(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create item"})
		return
	}

	ctx := c.Request.Context()
	var authors *assignment.Assignment
	if h.assignments.Supports(item.Type) {
		a, _, err := h.assignments.EnsureDefault(ctx, principal, item.ID)
		if err != nil {
			logger.L.Warn("default author not assigned", zap.Uint("item_id", item.ID), zap.Error(err))
		} else {
			authors = &a
		}
	}

	if err := h.db.Preload("Author").First(&item, item.ID).Error; err != nil {
		logger.L.Error("failed to reload created item", zap.Uint("item_id", item.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load item"})
		return
	}
	resp := h.response(c, item)
	resp.Authors = authors
	c.JSON(http.StatusCreated, resp)
}

// Get returns a specific item
func (h *Handler) Get(c *gin.Context) {
	item, ok := h.loadItem(c)
	if !ok {
		return
	}
	if !canRead(auth.GetPrincipal(c), item) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	c.JSON(http.StatusOK, h.response(c, item))
}

// Update updates an item's title, slug or status
func (h *Handler) Update(c *gin.Context) {
	item, ok := h.loadItem(c)
	if !ok {
		return
	}
	if !canEdit(auth.GetPrincipal(c), item) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Sorry, you are not allowed to edit this item"})
		return
	}

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Title != "" {
		item.Title = req.Title
	}
	if req.Slug != "" {
		item.Slug = req.Slug
	}
	if req.Status != "" {
		item.Status = models.ItemStatus(req.Status)
	}

	if err := h.db.Omit("Author").Save(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update item"})
		return
	}

	c.JSON(http.StatusOK, h.response(c, item))
}

// Delete removes an item together with its author assignment
func (h *Handler) Delete(c *gin.Context) {
	item, ok := h.loadItem(c)
	if !ok {
		return
	}
	if !canEdit(auth.GetPrincipal(c), item) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Sorry, you are not allowed to delete this item"})
		return
	}

	ctx := c.Request.Context()
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := h.assignments.WithTx(tx).Purge(ctx, item.ID); err != nil {
			return err
		}
		return tx.Delete(&item).Error
	})
	if err != nil {
		logger.L.Error("failed to delete item", zap.Uint("item_id", item.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete item"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item deleted"})
}

// Byline returns the rendered author credit of an item
// @Summary Get an item's byline
// @Tags items
// @Produce json
// @Param id path int true "Item ID"
// @Success 200 {object} byline.Byline
// @Router /items/{id}/byline [get]
func (h *Handler) Byline(c *gin.Context) {
	item, ok := h.loadItem(c)
	if !ok {
		return
	}
	if !canRead(auth.GetPrincipal(c), item) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	c.JSON(http.StatusOK, h.bylines.ItemByline(c.Request.Context(), item))
}

// assignmentError writes the response for an assignment store error
func assignmentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, assignment.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Sorry, you are not allowed to edit authors"})
	case errors.Is(err, assignment.ErrUnsupportedType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "This content type does not support author assignment"})
	case errors.Is(err, assignment.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
	default:
		logger.L.Error("assignment store failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process author assignment"})
	}
}

// GetAssignment returns the stored author assignment of an item
// @Summary Get an item's author assignment
// @Tags items
// @Produce json
// @Param id path int true "Item ID"
// @Success 200 {object} assignment.Assignment
// @Router /items/{id}/assignment [get]
func (h *Handler) GetAssignment(c *gin.Context) {
	item, ok := h.loadItem(c)
	if !ok {
		return
	}
	if !canRead(auth.GetPrincipal(c), item) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	a, err := h.assignments.Get(c.Request.Context(), item.ID)
	if err != nil {
		assignmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// PutAssignment updates any of selected_users, selected_groups and selected_order.
// Omitted or null fields are left as they are.
// @Summary Update an item's author assignment
// @Tags items
// @Accept json
// @Produce json
// @Param id path int true "Item ID"
// @Param request body assignment.Patch true "Fields to replace"
// @Success 200 {object} assignment.Assignment
// @Failure 403 {object} map[string]string "Not allowed"
// @Security BearerAuth
// @Router /items/{id}/assignment [put]
func (h *Handler) PutAssignment(c *gin.Context) {
	item, ok := h.loadItem(c)
	if !ok {
		return
	}
	principal := auth.GetPrincipal(c)
	if principal.Can(auth.CapEditPosts) && !canEdit(principal, item) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Sorry, you are not allowed to edit this item"})
		return
	}

	var patch assignment.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.assignments.Set(c.Request.Context(), principal, item.ID, patch)
	if err != nil {
		assignmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// RegisterRoutes registers item routes. Reads are public for published
// items; everything else needs a user who can edit posts.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	public := rg.Group("", h.optionalAuth)
	public.GET("", h.List)
	public.POST("/preview", h.Preview)
	public.GET("/:id", h.Get)
	public.GET("/:id/byline", h.Byline)
	public.GET("/:id/assignment", h.GetAssignment)

	editor := rg.Group("", h.requireAuth, auth.RequireCapability(auth.CapEditPosts))
	editor.POST("", h.Create)
	editor.PUT("/:id", h.Update)
	editor.DELETE("/:id", h.Delete)

	// capability is checked by the assignment store so a refusal reads the same everywhere
	rg.PUT("/:id/assignment", h.requireAuth, h.PutAssignment)
}
