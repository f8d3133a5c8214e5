package items

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/listing"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/reference"
	"go.uber.org/zap"
)

const maxPerPage = 100

// PreviewRequest describes a content loop rendered by an editor preview
type PreviewRequest struct {
	Type          string   `json:"type"`
	Status        []string `json:"status"`
	AuthorsFilter string   `json:"authors_filter"`
	Include       []any    `json:"include"`
	OrderBy       string   `json:"order_by" binding:"omitempty,oneof=date title include"`
	Limit         int      `json:"limit" binding:"omitempty,min=0,max=100"`
	Offset        int      `json:"offset" binding:"omitempty,min=0"`
}

// ListResponse wraps a page of items
type ListResponse struct {
	Items []ItemResponse `json:"items"`
	Count int            `json:"count"`
}

// List runs a content loop built from query parameters
// @Summary List items
// @Tags items
// @Produce json
// @Param type query string false "Content type" default(post)
// @Param authors_filter query string false "user-<id> or group-<id>"
// @Param include query string false "Comma separated item ids"
// @Param status query string false "Comma separated statuses"
// @Param order_by query string false "date, title or include"
// @Success 200 {object} ListResponse
// @Router /items [get]
func (h *Handler) List(c *gin.Context) {
	req := PreviewRequest{
		Type:          c.Query("type"),
		AuthorsFilter: c.Query("authors_filter"),
		OrderBy:       c.Query("order_by"),
	}
	if s := c.Query("status"); s != "" {
		req.Status = strings.Split(s, ",")
	}
	if s, ok := c.GetQuery("include"); ok {
		req.Include = []any{}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				req.Include = append(req.Include, part)
			}
		}
	}
	var err error
	if req.Limit, err = intParam(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	if req.Offset, err = intParam(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}
	switch req.OrderBy {
	case "", listing.OrderByDate, listing.OrderByTitle, listing.OrderByInclude:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order_by"})
		return
	}

	h.runLoop(c, req)
}

// Preview runs the same content loop as List from a JSON body
// @Summary Preview a content loop
// @Tags items
// @Accept json
// @Produce json
// @Param request body PreviewRequest true "Loop settings"
// @Success 200 {object} ListResponse
// @Router /items/preview [post]
func (h *Handler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.runLoop(c, req)
}

func (h *Handler) runLoop(c *gin.Context, req PreviewRequest) {
	statuses, ok := allowedStatuses(auth.GetPrincipal(c), req.Status)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Sorry, you are not allowed to list unpublished items"})
		return
	}

	limit := req.Limit
	if limit <= 0 || limit > maxPerPage {
		limit = maxPerPage
	}

	q := listing.Query{
		Kind:          listing.KindLoop,
		ContentType:   strings.TrimSpace(req.Type),
		Statuses:      statuses,
		AuthorsFilter: req.AuthorsFilter,
		Include:       includeIDs(req.Include),
		OrderBy:       req.OrderBy,
		Limit:         limit,
		Offset:        req.Offset,
	}

	ctx := c.Request.Context()
	found, err := h.listings.Run(ctx, q)
	if err != nil {
		logger.L.Error("content loop failed", zap.String("authors_filter", req.AuthorsFilter), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list items"})
		return
	}

	c.JSON(http.StatusOK, h.listResponse(c, found))
}

func (h *Handler) listResponse(c *gin.Context, found []models.Item) ListResponse {
	resp := ListResponse{Items: make([]ItemResponse, 0, len(found)), Count: len(found)}
	for _, item := range found {
		resp.Items = append(resp.Items, h.response(c, item))
	}
	return resp
}

// Page runs a prepared query kind for an archive and renders the result
func (h *Handler) Page(c *gin.Context, q listing.Query) (ListResponse, error) {
	found, err := h.listings.Run(c.Request.Context(), q)
	if err != nil {
		return ListResponse{}, err
	}
	return h.listResponse(c, found), nil
}

// allowedStatuses validates requested statuses. Anything other than
// publish needs a user who can edit posts.
func allowedStatuses(p auth.Principal, requested []string) ([]models.ItemStatus, bool) {
	var out []models.ItemStatus
	for _, s := range requested {
		status := models.ItemStatus(strings.TrimSpace(s))
		switch status {
		case "":
			continue
		case models.StatusPublish:
		case models.StatusDraft, models.StatusPending, models.StatusPrivate:
			if !p.Can(auth.CapEditPosts) {
				return nil, false
			}
		default:
			continue
		}
		out = append(out, status)
	}
	return out, true
}

// includeIDs coerces an include list. nil stays nil so that an absent
// parameter does not filter; ids that coerce to zero are dropped.
func includeIDs(raw []any) []uint {
	if raw == nil {
		return nil
	}
	out := []uint{}
	for _, v := range raw {
		var id uint
		switch x := v.(type) {
		case float64:
			if x > 0 {
				id = uint(x)
			}
		case string:
			id = reference.CoerceID(x)
		}
		if id != 0 {
			out = append(out, id)
		}
	}
	return out
}

func intParam(c *gin.Context, name string) (int, error) {
	s := c.Query(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
