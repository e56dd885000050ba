package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/99designs/keyring"

	"github.com/ArionMiles/cardtx/internal/credential"
	"github.com/ArionMiles/cardtx/pkg/client"
)

// setupCmd stores the IMAP password in the keyring or runs the Google OAuth flow.
func setupCmd(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a JSON config file (default $CARDTX_CONFIG)")
	force := fs.Bool("force", false, "replace an existing secret or token")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	registry, err := newRegistry()
	if err != nil {
		return err
	}

	fmt.Println("=== cardtx Setup ===")
	fmt.Println()

	if cfg.Reader == "imap" {
		if err := setupIMAP(cfg.ReaderConfig, *force); err != nil {
			return err
		}
	}

	scopes, err := registry.GetAllScopes(cfg.Reader, cfg.Writer)
	if err != nil {
		return err
	}
	if len(scopes) > 0 {
		if err := setupOAuth(logger, cfg.OAuth.SecretFile, cfg.OAuth.TokenFile, scopes, *force); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run 'cardtx status' to verify mailbox access")
	fmt.Println("  2. Run 'cardtx run' to extract this month's transactions")
	return nil
}

func setupIMAP(readerConfig []byte, force bool) error {
	username, err := imapUsername(readerConfig)
	if err != nil {
		return err
	}

	store, err := credential.Open()
	if err != nil {
		return err
	}

	key := credential.Key("imap", username)
	if !force {
		if _, err := store.Get(key); err == nil {
			fmt.Printf("IMAP password for %s is already stored.\n", username)
			fmt.Println("To replace it, run: cardtx setup --force")
			return nil
		} else if !errors.Is(err, credential.ErrNotFound) {
			return err
		}
	}

	password, err := keyring.TerminalPrompt(fmt.Sprintf("IMAP password for %s: ", username))
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return errors.New("empty password")
	}

	if err := store.Set(key, password); err != nil {
		return err
	}
	fmt.Printf("Stored IMAP password for %s in the system keyring.\n", username)
	return nil
}

func setupOAuth(logger *slog.Logger, secretsPath, tokenPath string, scopes []string, force bool) error {
	if secretsPath == "" {
		secretsPath = client.DefaultSecretFile
	}
	if tokenPath == "" {
		tokenPath = client.DefaultTokenFile
	}

	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", secretsPath, secretsPath)
	}

	if !force {
		if _, err := os.Stat(tokenPath); err == nil {
			fmt.Printf("Already authorized with Google. Token file exists: %s\n", tokenPath)
			fmt.Println("To re-authenticate, run: cardtx setup --force")
			return nil
		}
	} else if err := os.Remove(tokenPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove existing token", "error", err)
	}

	fmt.Println("Authorizing Google access for scopes:")
	for _, s := range scopes {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Println()

	_, err := client.New(context.Background(), client.Config{
		SecretFile: secretsPath,
		TokenFile:  tokenPath,
		Scopes:     scopes,
	}, logger)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Printf("Token saved to: %s\n", tokenPath)
	return nil
}
