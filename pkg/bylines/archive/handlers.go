// Package archive serves the public author and group archive pages
package archive

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/identity"
	"github.com/mikepea/bylines/pkg/bylines/items"
	"github.com/mikepea/bylines/pkg/bylines/listing"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"go.uber.org/zap"
)

// PerPage is the archive page size
const PerPage = 10

// Handler handles archive requests
type Handler struct {
	dir   *identity.Directory
	items *items.Handler
}

// NewHandler creates a new archive handler
func NewHandler(dir *identity.Directory, items *items.Handler) *Handler {
	return &Handler{dir: dir, items: items}
}

// AuthorInfo describes the author an archive belongs to
type AuthorInfo struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Link string `json:"link"`
}

// GroupInfo describes the group an archive belongs to
type GroupInfo struct {
	identity.GroupInfo
	Link string `json:"link"`
}

// Response is one page of an archive
type Response struct {
	Author *AuthorInfo          `json:"author,omitempty"`
	Group  *GroupInfo           `json:"group,omitempty"`
	Page   int                  `json:"page"`
	Items  []items.ItemResponse `json:"items"`
	Count  int                  `json:"count"`
}

func page(c *gin.Context) (int, bool) {
	s := c.DefaultQuery("page", "1")
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 {
		return 0, false
	}
	return p, true
}

func (h *Handler) run(c *gin.Context, q listing.Query, resp Response) {
	p, ok := page(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page"})
		return
	}
	q.ContentType = c.DefaultQuery("type", "post")
	q.Statuses = []models.ItemStatus{models.StatusPublish}
	q.Main = true
	q.Limit = PerPage
	q.Offset = (p - 1) * PerPage

	list, err := h.items.Page(c, q)
	if err != nil {
		logger.L.Error("archive query failed", zap.String("kind", string(q.Kind)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list items"})
		return
	}

	resp.Page = p
	resp.Items = list.Items
	resp.Count = list.Count
	c.JSON(http.StatusOK, resp)
}

// Author lists the items credited to a user
// @Summary Author archive
// @Tags archive
// @Produce json
// @Param id path int true "User ID"
// @Param type query string false "Content type" default(post)
// @Param page query int false "Page number" default(1)
// @Success 200 {object} Response
// @Router /author/{id} [get]
func (h *Handler) Author(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid author ID"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.dir.User(ctx, uint(userID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Author not found"})
		return
	}

	author := &AuthorInfo{
		ID:   user.ID,
		Name: user.Name,
		Link: h.dir.Links().DefaultAuthorURL(user.ID),
	}
	h.run(c, listing.Query{Kind: listing.KindAuthorArchive, AuthorID: user.ID}, Response{Author: author})
}

// Group lists the items credited to a user group
// @Summary Group archive
// @Tags archive
// @Produce json
// @Param slug path string true "Group slug"
// @Param page query int false "Page number" default(1)
// @Success 200 {object} Response
// @Router /users/group/{slug} [get]
func (h *Handler) Group(c *gin.Context) {
	group, err := h.dir.GroupBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) && !errors.Is(err, identity.ErrGroupsUnavailable) {
			logger.L.Error("group lookup failed", zap.String("slug", c.Param("slug")), zap.Error(err))
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	info := &GroupInfo{GroupInfo: group, Link: h.dir.Links().GroupURL(group.Slug)}
	q := listing.Query{
		Kind:         listing.KindGroupArchive,
		TermTaxonomy: models.TaxonomyUserGroup,
		TermID:       group.ID,
	}
	h.run(c, q, Response{Group: info})
}

// RegisterRoutes registers archive routes on the root router
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/author/:id", h.Author)
	r.GET("/"+h.dir.Links().GroupBase()+"/:slug", h.Group)
}
