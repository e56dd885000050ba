// Package gmail provides a plugin wrapper for the Gmail reader.
package gmail

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/api"
	gmailreader "github.com/ArionMiles/cardtx/pkg/reader/gmail"
)

// Plugin implements the ReaderPlugin interface for Gmail.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "gmail"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read card alerts from Gmail through the Gmail API"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{gmailapi.GmailReadonlyScope}
}

// Config represents the Gmail reader configuration.
type Config struct {
	User     string `json:"user,omitempty"`
	Query    string `json:"query,omitempty"`
	PageSize int64  `json:"page_size,omitempty"`
}

// NewReader creates a new Gmail reader instance.
func (p *Plugin) NewReader(httpClient *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Dialer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling gmail config: %w", err)
	}

	return gmailreader.New(httpClient, gmailreader.Config{
		User:     cfg.User,
		Query:    cfg.Query,
		PageSize: cfg.PageSize,
	}, logger)
}
