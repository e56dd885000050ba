// Package client provides OAuth2 client setup for Google APIs.
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	callbackPath  = "/callback"
	serverTimeout = 5 * time.Minute
)

// Defaults for Config.
const (
	DefaultSecretFile   = "data/client_secret.json"
	DefaultTokenFile    = "data/token.json"
	DefaultCallbackPort = 8085
)

// ErrNoToken is returned by LoadToken when no token has been stored yet.
var ErrNoToken = errors.New("no stored token")

// Config locates the OAuth client secret and the cached token.
type Config struct {
	SecretFile   string
	TokenFile    string
	CallbackPort int
	Scopes       []string
}

func (c *Config) setDefaults() {
	if c.SecretFile == "" {
		c.SecretFile = DefaultSecretFile
	}
	if c.TokenFile == "" {
		c.TokenFile = DefaultTokenFile
	}
	if c.CallbackPort == 0 {
		c.CallbackPort = DefaultCallbackPort
	}
}

// New returns an HTTP client authorized for cfg.Scopes. When no token is
// cached it runs the browser consent flow and stores the result.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*http.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()

	if len(cfg.Scopes) == 0 {
		return nil, errors.New("at least one oauth scope is required")
	}

	b, err := os.ReadFile(cfg.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}

	oc, err := google.ConfigFromJSON(b, cfg.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}

	tok, err := LoadToken(cfg.TokenFile)
	if err != nil {
		logger.Info("no usable token found, starting consent flow", "token_file", cfg.TokenFile, "reason", err)
		tok, err = tokenFromWeb(ctx, oc, cfg.CallbackPort, logger)
		if err != nil {
			return nil, err
		}
		if err := SaveToken(cfg.TokenFile, tok); err != nil {
			logger.Error("failed to save token", "error", err)
		}
	}

	return oc.Client(ctx, tok), nil
}

// LoadToken reads a cached token.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("opening token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return nil
}

func tokenFromWeb(ctx context.Context, oc *oauth2.Config, port int, logger *slog.Logger) (*oauth2.Token, error) {
	oc.RedirectURL = fmt.Sprintf("http://localhost:%d%s", port, callbackPath)

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle(callbackPath, callbackHandler(state, codeChan, errChan))
	server := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", port, err)
	}

	go func() {
		logger.Debug("starting oauth callback server", "port", port)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := oc.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Printf("\nOpening browser for Google authentication...\n")
	fmt.Printf("If the browser doesn't open automatically, visit this URL:\n%s\n\n", authURL)
	if err := openBrowser(ctx, authURL); err != nil {
		logger.Warn("failed to open browser automatically", "error", err)
	}

	select {
	case code := <-codeChan:
		tok, err := oc.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code for token: %w", err)
		}
		return tok, nil
	case err := <-errChan:
		return nil, fmt.Errorf("oauth callback error: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(serverTimeout):
		return nil, fmt.Errorf("oauth flow timed out after %v", serverTimeout)
	}
}

// callbackHandler delivers exactly one outcome on codeChan or errChan.
func callbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	fail := func(w http.ResponseWriter, err error) {
		select {
		case errChan <- err:
		default:
		}
		http.Error(w, "Authentication failed: "+err.Error(), http.StatusBadRequest)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != expectedState {
			fail(w, errors.New("invalid state parameter"))
			return
		}
		if e := q.Get("error"); e != "" {
			fail(w, fmt.Errorf("%s: %s", e, q.Get("error_description")))
			return
		}
		code := q.Get("code")
		if code == "" {
			fail(w, errors.New("no authorization code received"))
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "Authentication successful. You can close this window and return to the terminal.")

		select {
		case codeChan <- code:
		default:
		}
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
