package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/config"
	"github.com/mikepea/bylines/pkg/bylines/database"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/server"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title Bylines API
// @version 1.0
// @description Assign ordered lists of users and user groups as the authors of content items.

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogProduction); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.LogProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	auth.SetSecret(cfg.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.DatabaseURL); err != nil {
		logger.L.Fatal("failed to connect to database", zap.Error(err))
	}
	db := database.GetDB()

	// Run auto-migrations
	if err := models.AutoMigrate(db); err != nil {
		logger.L.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.L.Info("database migrations completed")

	if err := ensureAdminExists(db, cfg); err != nil {
		logger.L.Fatal("failed to ensure admin user exists", zap.Error(err))
	}

	r := server.New(cfg, db)

	logger.L.Info("starting bylines server", zap.String("port", cfg.Port), zap.String("base_url", cfg.BaseURL))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.L.Fatal("failed to start server", zap.Error(err))
	}
}

// ensureAdminExists creates the configured admin user when no administrator
// exists yet. Without BYLINES_ADMIN_EMAIL the first registered account
// becomes the administrator instead.
func ensureAdminExists(db *gorm.DB, cfg *config.Config) error {
	if cfg.AdminEmail == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdministrator).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil // Admin already exists
	}

	hashedPassword, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}

	adminUser := models.User{
		Email:        cfg.AdminEmail,
		Name:         "Admin",
		Nicename:     auth.Nicename("Admin"),
		PasswordHash: hashedPassword,
		Role:         models.RoleAdministrator,
	}
	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	logger.L.Info("created admin user", zap.String("email", adminUser.Email))
	return nil
}
