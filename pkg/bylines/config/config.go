package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Reverse index strategies
const (
	ReverseIndexJoinTable = "index"
	ReverseIndexScan      = "scan"
)

// Config holds the runtime settings of the service
type Config struct {
	DatabaseURL   string
	Port          string
	BaseURL       string
	JWTSecret     string
	LogLevel      string
	LogProduction bool

	// ContentTypes lists the item types that carry author assignments
	ContentTypes []string
	// GroupsEnabled is false when no group directory is installed
	GroupsEnabled bool
	// ReverseIndex selects how items are looked up by user or group
	ReverseIndex string
	// GroupBase is the path prefix of group archive pages
	GroupBase string

	// AdminEmail and AdminPassword seed an administrator into an empty database
	AdminEmail    string
	AdminPassword string
}

// Load reads .env (if present) and BYLINES_* environment variables
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env is normal outside development

	v := viper.New()
	v.SetEnvPrefix("BYLINES")
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "sqlite:bylines.db")
	v.SetDefault("port", "8080")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("jwt_secret", "bylines-dev-secret-change-in-production")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_production", false)
	v.SetDefault("content_types", "post")
	v.SetDefault("groups_enabled", true)
	v.SetDefault("reverse_index", ReverseIndexJoinTable)
	v.SetDefault("group_base", "users/group")
	v.SetDefault("admin_email", "")
	v.SetDefault("admin_password", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL:   v.GetString("database_url"),
		Port:          v.GetString("port"),
		BaseURL:       strings.TrimRight(v.GetString("base_url"), "/"),
		JWTSecret:     v.GetString("jwt_secret"),
		LogLevel:      v.GetString("log_level"),
		LogProduction: v.GetBool("log_production"),
		ContentTypes:  splitList(v.GetString("content_types")),
		GroupsEnabled: v.GetBool("groups_enabled"),
		ReverseIndex:  strings.ToLower(strings.TrimSpace(v.GetString("reverse_index"))),
		GroupBase:     strings.Trim(v.GetString("group_base"), "/"),
		AdminEmail:    strings.TrimSpace(v.GetString("admin_email")),
		AdminPassword: v.GetString("admin_password"),
	}

	if len(cfg.ContentTypes) == 0 {
		cfg.ContentTypes = []string{"post"}
	}
	switch cfg.ReverseIndex {
	case ReverseIndexJoinTable, ReverseIndexScan:
	default:
		return nil, fmt.Errorf("invalid reverse index strategy %q (want %q or %q)", cfg.ReverseIndex, ReverseIndexJoinTable, ReverseIndexScan)
	}
	if cfg.GroupBase == "" {
		return nil, fmt.Errorf("group base path can't be empty")
	}
	if cfg.AdminEmail != "" && len(cfg.AdminPassword) < 8 {
		return nil, fmt.Errorf("admin password must be at least 8 characters")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
