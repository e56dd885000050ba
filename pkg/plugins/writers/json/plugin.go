// Package json provides a plugin wrapper for the JSON writer.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/api"
	jsonwriter "github.com/ArionMiles/cardtx/pkg/writer/json"
)

// Plugin implements the WriterPlugin interface for JSON files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "json"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Write the month's transactions to a JSON file"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// Config represents the JSON writer configuration.
type Config struct {
	FilePath string `json:"file_path"`
}

// NewWriter creates a new JSON writer instance.
func (p *Plugin) NewWriter(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling json config: %w", err)
	}

	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}

	return jsonwriter.New(jsonwriter.Config{FilePath: cfg.FilePath}, logger)
}
