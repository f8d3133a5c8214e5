package importexport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/assignment"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/meta"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// assignmentKeys are the attributes carried by an export
var assignmentKeys = []string{assignment.MetaUsers, assignment.MetaGroups, assignment.MetaOrder}

// normalize rewrites an imported attribute in the layout the assignment
// store writes, so every reader sees the values the decoder sees.
func normalize(key, value string) string {
	switch key {
	case assignment.MetaUsers, assignment.MetaGroups:
		return assignment.EncodeIDs(assignment.DecodeIDs(value))
	case assignment.MetaOrder:
		return assignment.EncodeTokens(assignment.DecodeTokens(value))
	}
	return value
}

// Handler handles import/export requests
type Handler struct {
	db          *gorm.DB
	meta        *meta.Store
	assignments *assignment.Store
}

// NewHandler creates a new import/export handler
func NewHandler(db *gorm.DB, assignments *assignment.Store) *Handler {
	return &Handler{db: db, meta: meta.NewStore(db), assignments: assignments}
}

// Record is one item in the export format. Meta holds the stored assignment
// attributes exactly as persisted so that legacy encodings survive a round trip.
type Record struct {
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Title       string            `json:"title"`
	Slug        string            `json:"slug"`
	AuthorEmail string            `json:"author_email"`
	Time        string            `json:"time"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// ImportRequest represents an import request
type ImportRequest struct {
	Items []Record `json:"items" binding:"required"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Indexed  int      `json:"indexed"`
	Errors   []string `json:"errors,omitempty"`
}

func validStatus(s models.ItemStatus) bool {
	switch s {
	case models.StatusPublish, models.StatusDraft, models.StatusPending, models.StatusPrivate, models.StatusTrash:
		return true
	}
	return false
}

// Import creates items together with their assignment attributes, rewritten
// in the stored layout, and rebuilds the reference index of every imported
// item of a supported type
func (h *Handler) Import(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	ctx := c.Request.Context()

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := ImportResult{
		Errors: []string{},
	}

	for i, rec := range req.Items {
		skip := func(reason string) {
			result.Errors = append(result.Errors, "item "+strconv.Itoa(i)+": "+reason)
			result.Skipped++
		}

		if rec.Type == "" || rec.Title == "" {
			skip("type and title are required")
			continue
		}

		status := models.ItemStatus(rec.Status)
		if status == "" {
			status = models.StatusDraft
		}
		if !validStatus(status) {
			skip("invalid status " + strconv.Quote(rec.Status))
			continue
		}

		createdAt := time.Now()
		if rec.Time != "" {
			parsed, err := time.Parse(time.RFC3339, rec.Time)
			if err != nil {
				skip("invalid time format")
				continue
			}
			createdAt = parsed
		}

		authorID := userID
		if rec.AuthorEmail != "" {
			var author models.User
			if err := h.db.Where("email = ?", rec.AuthorEmail).First(&author).Error; err == nil {
				authorID = author.ID
			}
		}

		slug := rec.Slug
		if slug == "" {
			slug = auth.Nicename(rec.Title)
		}

		item := models.Item{
			Type:     rec.Type,
			Status:   status,
			Title:    rec.Title,
			Slug:     slug,
			AuthorID: authorID,
		}
		item.CreatedAt = createdAt

		err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			m := h.meta.WithTx(tx)
			for _, key := range assignmentKeys {
				if value, ok := rec.Meta[key]; ok {
					if err := m.Set(ctx, item.ID, key, normalize(key, value)); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			skip(err.Error())
			continue
		}
		result.Imported++

		if !h.assignments.Supports(item.Type) {
			continue
		}
		if err := h.assignments.ReindexItem(ctx, item.ID); err != nil {
			logger.L.Warn("imported item not indexed", zap.Uint("item_id", item.ID), zap.Error(err))
			continue
		}
		result.Indexed++
	}

	logger.L.Info("items imported",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Uint("user_id", userID))
	c.JSON(http.StatusOK, result)
}

// Export writes every item of the requested type (all types when absent)
// with its stored assignment attributes
func (h *Handler) Export(c *gin.Context) {
	ctx := c.Request.Context()

	query := h.db.WithContext(ctx).Preload("Author").Order("created_at ASC").Order("id ASC")
	if itemType := c.Query("type"); itemType != "" {
		query = query.Where("type = ?", itemType)
	}

	var found []models.Item
	if err := query.Find(&found).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch items"})
		return
	}

	records := make([]Record, 0, len(found))
	for _, item := range found {
		rec, err := h.record(c, item)
		if err != nil {
			logger.L.Error("export failed", zap.Uint("item_id", item.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read item attributes"})
			return
		}
		records = append(records, rec)
	}

	// Set content disposition for download
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=bylines-export.json")
	}

	c.JSON(http.StatusOK, records)
}

// ExportSingle exports one item
func (h *Handler) ExportSingle(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID"})
		return
	}

	var item models.Item
	if err := h.db.Preload("Author").First(&item, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	rec, err := h.record(c, item)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read item attributes"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) record(c *gin.Context, item models.Item) (Record, error) {
	values, err := h.meta.GetAll(c.Request.Context(), item.ID)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		Type:        item.Type,
		Status:      string(item.Status),
		Title:       item.Title,
		Slug:        item.Slug,
		AuthorEmail: item.Author.Email,
		Time:        item.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, key := range assignmentKeys {
		if value, ok := values[key]; ok {
			if rec.Meta == nil {
				rec.Meta = make(map[string]string, len(assignmentKeys))
			}
			rec.Meta[key] = value
		}
	}
	return rec, nil
}

// RegisterRoutes registers import/export routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/import", h.Import)
	rg.GET("/export", h.Export)
	rg.GET("/export/:id", h.ExportSingle)
}
