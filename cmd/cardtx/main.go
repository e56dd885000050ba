package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/client"
	"github.com/ArionMiles/cardtx/pkg/config"
	"github.com/ArionMiles/cardtx/pkg/logging"
	imapplugin "github.com/ArionMiles/cardtx/pkg/plugins/readers/imap"
	gmailplugin "github.com/ArionMiles/cardtx/pkg/plugins/readers/gmail"
	mboxplugin "github.com/ArionMiles/cardtx/pkg/plugins/readers/mbox"
	csvplugin "github.com/ArionMiles/cardtx/pkg/plugins/writers/csv"
	jsonplugin "github.com/ArionMiles/cardtx/pkg/plugins/writers/json"
	postgresplugin "github.com/ArionMiles/cardtx/pkg/plugins/writers/postgres"
	sheetsplugin "github.com/ArionMiles/cardtx/pkg/plugins/writers/sheets"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional
	_ = godotenv.Load()

	logger := logging.Setup(logging.DefaultConfig())

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(logger, os.Args[2:])
	case "status":
		err = statusCmd(logger, os.Args[2:])
	case "setup":
		err = setupCmd(logger, os.Args[2:])
	case "version":
		fmt.Println("cardtx", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(exitCode(err))
	}
}

func printUsage() {
	fmt.Println("cardtx - extract card transactions from bank alert emails")
	fmt.Println("\nUsage:")
	fmt.Println("  cardtx <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run       Extract the target month's transactions and write them")
	fmt.Println("  status    Check configuration, credentials and mailbox access")
	fmt.Println("  setup     Store the mailbox password or authorize Google access")
	fmt.Println("  version   Print the version")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nConfiguration is read from embedded defaults, the file named by")
	fmt.Println("CARDTX_CONFIG (or --config), then CARDTX_* environment variables.")
	fmt.Println("\nRun 'cardtx <command> -h' for more information on a command.")
}

func newRegistry() (*plugins.Registry, error) {
	registry := plugins.NewRegistry()

	readers := []plugins.ReaderPlugin{
		&imapplugin.Plugin{},
		&gmailplugin.Plugin{},
		&mboxplugin.Plugin{},
	}
	for _, p := range readers {
		if err := registry.RegisterReader(p); err != nil {
			return nil, fmt.Errorf("registering %s reader: %w", p.Name(), err)
		}
	}

	writers := []plugins.WriterPlugin{
		&csvplugin.Plugin{},
		&jsonplugin.Plugin{},
		&sheetsplugin.Plugin{},
		&postgresplugin.Plugin{},
	}
	for _, p := range writers {
		if err := registry.RegisterWriter(p); err != nil {
			return nil, fmt.Errorf("registering %s writer: %w", p.Name(), err)
		}
	}

	return registry, nil
}

// oauthClient returns a ClientFunc bound to the configured OAuth files.
func oauthClient(cfg *config.Config, logger *slog.Logger) func(context.Context, []string) (*http.Client, error) {
	return func(ctx context.Context, scopes []string) (*http.Client, error) {
		return client.New(ctx, client.Config{
			SecretFile: cfg.OAuth.SecretFile,
			TokenFile:  cfg.OAuth.TokenFile,
			Scopes:     scopes,
		}, logger.With("component", "oauth"))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(config.EnvConfigFile)
	}
	return config.Load(path)
}
