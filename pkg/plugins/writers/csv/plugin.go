// Package csv provides a plugin wrapper for the CSV writer.
package csv

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/api"
	csvwriter "github.com/ArionMiles/cardtx/pkg/writer/csv"
)

// Plugin implements the WriterPlugin interface for CSV files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "csv"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Write the month's transactions to a CSV file"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	// CSV writer doesn't need OAuth scopes
	return nil
}

// Config represents the CSV writer configuration.
type Config struct {
	FilePath  string `json:"file_path"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// NewWriter creates a new CSV writer instance.
func (p *Plugin) NewWriter(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling csv config: %w", err)
	}

	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}

	return csvwriter.New(csvwriter.Config{
		FilePath:  cfg.FilePath,
		BatchSize: cfg.BatchSize,
	}, logger)
}
