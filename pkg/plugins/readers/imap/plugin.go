// Package imap provides a plugin wrapper for the IMAP reader.
package imap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/cardtx/internal/credential"
	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/api"
	imapreader "github.com/ArionMiles/cardtx/pkg/reader/imap"
)

// EnvPassword overrides the keyring lookup for the mailbox password.
const EnvPassword = "CARDTX_IMAP_PASSWORD"

// Plugin implements the ReaderPlugin interface for IMAP mailboxes.
type Plugin struct {
	// Store resolves the password when the config carries none.
	// Nil opens the system keyring on demand.
	Store *credential.Store
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "imap"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read card alerts from an IMAP mailbox over TLS"
}

// RequiredScopes returns nil; IMAP authenticates with a password.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// Config represents the IMAP reader configuration.
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Folder   string `json:"folder,omitempty"`
	StartTLS bool   `json:"start_tls,omitempty"`
}

// NewReader creates a new IMAP reader instance.
func (p *Plugin) NewReader(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Dialer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling imap config: %w", err)
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("username is required")
	}

	if cfg.Password == "" {
		pw, err := p.password(cfg.Username)
		if err != nil {
			return nil, fmt.Errorf("resolving imap password: %w", err)
		}
		cfg.Password = pw
	}

	return imapreader.New(imapreader.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		Folder:   cfg.Folder,
		StartTLS: cfg.StartTLS,
	}, logger)
}

func (p *Plugin) password(username string) (string, error) {
	store := p.Store
	if store == nil {
		s, err := credential.Open()
		if err != nil {
			return credential.Lookup(nil, EnvPassword, "")
		}
		store = s
	}
	return credential.Lookup(store, EnvPassword, credential.Key(p.Name(), username))
}
