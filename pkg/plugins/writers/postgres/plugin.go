// Package postgres provides a plugin wrapper for the PostgreSQL writer.
package postgres

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/api"
	pgwriter "github.com/ArionMiles/cardtx/pkg/writer/postgres"
)

// EnvPassword supplies the database password when the config carries none.
const EnvPassword = "CARDTX_POSTGRES_PASSWORD"

// Plugin implements the WriterPlugin interface for PostgreSQL.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "postgres"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Upsert transactions into a PostgreSQL table"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
// PostgreSQL writer doesn't require OAuth scopes.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// Config represents the PostgreSQL writer configuration.
type Config struct {
	DSN         string `json:"dsn,omitempty"`
	Host        string `json:"host"`
	Port        int    `json:"port,omitempty"`
	Database    string `json:"database"`
	User        string `json:"user"`
	Password    string `json:"password,omitempty"`
	SSLMode     string `json:"sslmode,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
	MaxPoolSize int    `json:"max_pool_size,omitempty"`
}

// NewWriter creates a new PostgreSQL writer instance.
func (p *Plugin) NewWriter(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling postgres config: %w", err)
	}

	if cfg.Password == "" {
		cfg.Password = os.Getenv(EnvPassword)
	}

	if cfg.DSN == "" {
		if cfg.Host == "" {
			return nil, fmt.Errorf("host is required")
		}
		if cfg.Database == "" {
			return nil, fmt.Errorf("database is required")
		}
		if cfg.User == "" {
			return nil, fmt.Errorf("user is required")
		}
	}

	return pgwriter.New(pgwriter.Config{
		DSN:         cfg.DSN,
		Host:        cfg.Host,
		Port:        cfg.Port,
		Database:    cfg.Database,
		User:        cfg.User,
		Password:    cfg.Password,
		SSLMode:     cfg.SSLMode,
		BatchSize:   cfg.BatchSize,
		MaxPoolSize: cfg.MaxPoolSize,
	}, logger)
}
