// Package server assembles the HTTP router from the configured components
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/admin"
	"github.com/mikepea/bylines/pkg/bylines/apikeys"
	"github.com/mikepea/bylines/pkg/bylines/archive"
	"github.com/mikepea/bylines/pkg/bylines/assignment"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/byline"
	"github.com/mikepea/bylines/pkg/bylines/config"
	"github.com/mikepea/bylines/pkg/bylines/groups"
	"github.com/mikepea/bylines/pkg/bylines/identity"
	"github.com/mikepea/bylines/pkg/bylines/importexport"
	"github.com/mikepea/bylines/pkg/bylines/items"
	"github.com/mikepea/bylines/pkg/bylines/listing"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/permalink"
	"github.com/mikepea/bylines/pkg/bylines/reverseindex"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// New builds a gin engine with every route registered
func New(cfg *config.Config, db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(logger.GinZap(), gin.Recovery())

	links := permalink.NewBuilder(cfg.BaseURL, cfg.GroupBase)
	dir := identity.NewDirectory(db, links, cfg.GroupsEnabled)
	store := assignment.NewStore(db, cfg.ContentTypes)

	// author links of credited items point at the first assigned author
	bylines := byline.NewEngine(dir, store, links)
	links.Use(bylines.AuthorLinkFilter)

	finder := reverseindex.NewFinder(db, reverseindex.Strategy(cfg.ReverseIndex))
	listings := listing.NewEngine(db)
	listings.Use(
		listing.AuthorArchive(finder, store.Supports),
		listing.GroupArchive(finder, store.Supports),
		listing.LoopFilter(finder),
	)

	logger.L.Info("components ready",
		zap.Strings("content_types", store.ContentTypes()),
		zap.Bool("groups_enabled", dir.GroupsAvailable()),
		zap.String("reverse_index", string(finder.Strategy())))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Combined auth middleware (accepts JWT or API key)
	combinedAuth := apikeys.CombinedAuthMiddleware(db)
	itemsHandler := items.NewHandler(db, store, bylines, listings).
		WithAuth(combinedAuth, apikeys.OptionalAuthMiddleware(db))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "bylines",
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(db)
		authHandler.RegisterRoutes(api.Group("/auth"))

		// API keys routes (JWT only - need to be logged in to manage keys)
		apikeys.NewHandler(db).RegisterRoutes(api.Group("", auth.AuthMiddleware()))

		// Group lookups for assignment editors
		groupsHandler := groups.NewHandler(db, dir)
		groupsHandler.RegisterEditorRoutes(api.Group("", combinedAuth, auth.RequireCapability(auth.CapEditPosts)))

		// Group management
		groupsGroup := api.Group("/groups", combinedAuth, auth.RequireCapability(auth.CapManageGroups))
		groupsHandler.RegisterRoutes(groupsGroup)
		groupsHandler.RegisterMemberRoutes(groupsGroup)

		// Items, assignments, bylines and content loops
		itemsHandler.RegisterRoutes(api.Group("/items"))

		// Site administration
		adminGroup := api.Group("/admin", combinedAuth, auth.RequireCapability(auth.CapManageOptions))
		admin.NewHandler(db, store, finder).RegisterRoutes(adminGroup)
		importexport.NewHandler(db, store).RegisterRoutes(adminGroup)
	}

	// Public archive pages
	archive.NewHandler(dir, itemsHandler).RegisterRoutes(r)

	return r
}
