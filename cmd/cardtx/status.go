package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ArionMiles/cardtx/internal/credential"
	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/internal/runner"
	"github.com/ArionMiles/cardtx/pkg/client"
	"github.com/ArionMiles/cardtx/pkg/config"
	"github.com/ArionMiles/cardtx/pkg/logging"
	imapplugin "github.com/ArionMiles/cardtx/pkg/plugins/readers/imap"
)

// statusCmd checks the configuration, credentials and mailbox access.
func statusCmd(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a JSON config file (default $CARDTX_CONFIG)")
	_ = fs.Parse(args)

	fmt.Println("=== cardtx Status ===")
	fmt.Println()

	allGood := true

	fmt.Print("Configuration: ")
	cfg, err := loadConfig(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		printFinalStatus(false)
		return nil
	}
	fmt.Printf("✓ reader=%s writer=%s categories=%d\n", cfg.Reader, cfg.Writer, len(cfg.Categories))

	registry, err := newRegistry()
	if err != nil {
		return err
	}

	if cfg.Reader == "imap" {
		checkIMAPSecret(cfg, &allGood)
	}
	if !checkOAuth(registry, cfg, &allGood) {
		printFinalStatus(false)
		return nil
	}

	fmt.Print("Mailbox: ")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	quiet := logging.Discard()
	r := runner.New(registry, oauthClient(cfg, quiet), quiet)
	if err := r.Check(ctx, cfg); err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else {
		fmt.Println("✓ Connected")
	}

	logger.Debug("status complete", "ok", allGood)
	printFinalStatus(allGood)
	return nil
}

func checkIMAPSecret(cfg *config.Config, allGood *bool) {
	fmt.Print("IMAP password: ")

	var inline struct {
		Password string `json:"password"`
	}
	_ = json.Unmarshal(cfg.ReaderConfig, &inline)
	if inline.Password != "" {
		fmt.Println("⚠ Set in config file (prefer the keyring)")
		return
	}
	if os.Getenv(imapplugin.EnvPassword) != "" {
		fmt.Printf("✓ From %s\n", imapplugin.EnvPassword)
		return
	}

	username, err := imapUsername(cfg.ReaderConfig)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	store, err := credential.Open()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	if _, err := store.Get(credential.Key("imap", username)); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			fmt.Println("✗ Not stored (run 'cardtx setup')")
		} else {
			fmt.Printf("✗ %v\n", err)
		}
		*allGood = false
		return
	}
	fmt.Println("✓ Found in keyring")
}

// checkOAuth reports token state and returns false when a required token is missing.
func checkOAuth(registry *plugins.Registry, cfg *config.Config, allGood *bool) bool {
	scopes, err := registry.GetAllScopes(cfg.Reader, cfg.Writer)
	if err != nil {
		fmt.Printf("Plugins: ✗ %v\n", err)
		*allGood = false
		return false
	}
	if len(scopes) == 0 {
		return true
	}

	tokenPath := cfg.OAuth.TokenFile
	if tokenPath == "" {
		tokenPath = client.DefaultTokenFile
	}

	fmt.Printf("OAuth token (%s): ", tokenPath)
	token, err := client.LoadToken(tokenPath)
	if err != nil {
		if errors.Is(err, client.ErrNoToken) {
			fmt.Println("✗ Not found (run 'cardtx setup')")
		} else {
			fmt.Printf("✗ %v\n", err)
		}
		*allGood = false
		return false
	}

	if token.Expiry.Before(time.Now()) {
		fmt.Println("⚠ Expired (will refresh on next run)")
	} else {
		fmt.Printf("✓ Valid (expires: %s)\n", token.Expiry.Format(time.RFC3339))
	}
	return true
}

func printFinalStatus(allGood bool) {
	fmt.Println()
	if allGood {
		fmt.Println("Status: ✓ Ready to run")
		fmt.Println()
		fmt.Println("Run 'cardtx run' to extract this month's transactions.")
	} else {
		fmt.Println("Status: ✗ Configuration issues detected")
		fmt.Println()
		fmt.Println("Fix the issues above, then run 'cardtx status' again.")
	}
}

func imapUsername(readerConfig []byte) (string, error) {
	var cfg imapplugin.Config
	if err := plugins.DecodeConfig(readerConfig, &cfg); err != nil {
		return "", err
	}
	if cfg.Username == "" {
		return "", errors.New("imap username is not configured")
	}
	return cfg.Username, nil
}
