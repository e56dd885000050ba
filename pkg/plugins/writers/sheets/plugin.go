// Package sheets provides a plugin wrapper for the Google Sheets writer.
package sheets

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/api"
	sheetswriter "github.com/ArionMiles/cardtx/pkg/writer/sheets"
)

// Plugin implements the WriterPlugin interface for Google Sheets.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "sheets"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Replace a Google Sheets tab with the month's transactions"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{sheetsapi.SpreadsheetsScope}
}

// Config represents the Sheets writer configuration.
type Config struct {
	SheetTitle string `json:"sheet_title,omitempty"`
	SheetID    string `json:"sheet_id,omitempty"`
	SheetName  string `json:"sheet_name"`
	BatchSize  int    `json:"batch_size,omitempty"`
	// RetryDelay is in seconds.
	RetryDelay int `json:"retry_delay,omitempty"`
}

// NewWriter creates a new Sheets writer instance.
func (p *Plugin) NewWriter(httpClient *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling sheets config: %w", err)
	}

	if cfg.SheetName == "" {
		return nil, fmt.Errorf("sheet_name is required")
	}
	if cfg.SheetID == "" && cfg.SheetTitle == "" {
		return nil, fmt.Errorf("either sheet_id or sheet_title is required")
	}

	return sheetswriter.New(httpClient, sheetswriter.Config{
		SheetTitle: cfg.SheetTitle,
		SheetID:    cfg.SheetID,
		SheetName:  cfg.SheetName,
		BatchSize:  cfg.BatchSize,
		RetryDelay: time.Duration(cfg.RetryDelay) * time.Second,
	}, logger)
}
