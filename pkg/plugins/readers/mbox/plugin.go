// Package mbox provides a plugin wrapper for the mbox file reader.
package mbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/api"
	mboxreader "github.com/ArionMiles/cardtx/pkg/reader/mbox"
)

// Plugin implements the ReaderPlugin interface for local mbox files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "mbox"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read card alerts from a local mbox file"
}

// RequiredScopes returns nil; mbox files need no authorization.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// Config represents the mbox reader configuration.
type Config struct {
	Path string `json:"path"`
}

// NewReader creates a new mbox reader instance.
func (p *Plugin) NewReader(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Dialer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling mbox config: %w", err)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	return mboxreader.New(mboxreader.Config{Path: cfg.Path}, logger)
}
