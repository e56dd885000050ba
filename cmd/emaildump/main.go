// Command emaildump copies matching raw messages from the configured
// mailbox into an mbox file. The output feeds the mbox reader and tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/joho/godotenv"

	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/client"
	"github.com/ArionMiles/cardtx/pkg/config"
	"github.com/ArionMiles/cardtx/pkg/filter"
	"github.com/ArionMiles/cardtx/pkg/logging"
	"github.com/ArionMiles/cardtx/pkg/mailmsg"
	imapplugin "github.com/ArionMiles/cardtx/pkg/plugins/readers/imap"
	gmailplugin "github.com/ArionMiles/cardtx/pkg/plugins/readers/gmail"
)

const defaultOut = "tests/data/dump/alerts.mbox"

func main() {
	_ = godotenv.Load()
	logger := logging.Setup(logging.DefaultConfig())

	configPath := flag.String("config", os.Getenv(config.EnvConfigFile), "path to a JSON config file")
	out := flag.String("out", defaultOut, "mbox file to write")
	month := flag.String("month", "", "month to dump as YYYY-MM (default: current month)")
	limit := flag.Int("limit", 50, "maximum number of messages to dump (0 for no limit)")
	all := flag.Bool("all", false, "dump every message from the search, skipping the header filter")
	flag.Parse()

	if err := run(logger, *configPath, *out, *month, *limit, *all); err != nil {
		logger.Error("email dump failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, out, month string, limit int, all bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if month != "" {
		cfg.Month = month
	}
	target, err := cfg.TargetMonth(time.Now())
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	registry := plugins.NewRegistry()
	for _, p := range []plugins.ReaderPlugin{&imapplugin.Plugin{}, &gmailplugin.Plugin{}} {
		if err := registry.RegisterReader(p); err != nil {
			return err
		}
	}
	plugin, err := registry.GetReader(cfg.Reader)
	if err != nil {
		return fmt.Errorf("emaildump reads from imap or gmail: %w", err)
	}

	ctx := context.Background()
	var httpClient *http.Client
	if scopes := plugin.RequiredScopes(); len(scopes) > 0 {
		c, err := client.New(ctx, client.Config{
			SecretFile: cfg.OAuth.SecretFile,
			TokenFile:  cfg.OAuth.TokenFile,
			Scopes:     scopes,
		}, logger)
		if err != nil {
			return fmt.Errorf("creating http client: %w", err)
		}
		httpClient = c
	}

	dialer, err := plugin.NewReader(httpClient, cfg.ReaderConfig, logger.With("component", "reader"))
	if err != nil {
		return fmt.Errorf("creating reader: %w", err)
	}

	criteria := api.SearchCriteria{Since: target.Since(loc)}
	var f *filter.Filter
	if !all {
		f = filter.New(cfg.FilterConfig())
		if sender, ok := f.SingleSender(); ok {
			criteria.From = sender
		}
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}
	file, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating mbox file: %w", err)
	}
	defer file.Close()

	mb, err := dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to mailbox: %w", err)
	}
	defer func() {
		if err := mb.Logout(); err != nil {
			logger.Warn("logout failed", "error", err)
		}
	}()

	n, err := dump(ctx, mb, criteria, f, file, limit, logger)
	if err != nil {
		return err
	}

	logger.Info("email dump complete", "total_dumped", n, "file", out, "month", target.String())
	return nil
}

// dump writes messages found by criteria and accepted by f (nil accepts all)
// to w in mbox format, stopping after limit messages when limit > 0.
func dump(ctx context.Context, mb api.Mailbox, criteria api.SearchCriteria, f *filter.Filter, w io.Writer, limit int, logger *slog.Logger) (int, error) {
	ids, err := mb.Search(ctx, criteria)
	if err != nil {
		return 0, fmt.Errorf("searching mailbox: %w", err)
	}

	mw := mbox.NewWriter(w)
	count := 0
	for _, id := range ids {
		if limit > 0 && count >= limit {
			break
		}

		raw, err := mb.Fetch(ctx, id)
		if err != nil {
			return count, fmt.Errorf("fetching message %s: %w", id, err)
		}

		msg, err := mailmsg.Parse(id, raw)
		if err != nil {
			logger.Warn("skipping malformed message", "message_id", id, "error", err)
			continue
		}
		if f != nil {
			if v := f.Headers(msg); !v.Accepted {
				logger.Debug("skipping message", "message_id", id, "rule", v.Rule)
				continue
			}
		}

		date := msg.Date
		if date.IsZero() {
			date = time.Now()
		}
		entry, err := mw.CreateMessage(msg.Address, date)
		if err != nil {
			return count, fmt.Errorf("creating mbox entry: %w", err)
		}
		if _, err := entry.Write(raw); err != nil {
			return count, fmt.Errorf("writing message %s: %w", id, err)
		}
		count++
	}

	if err := mw.Close(); err != nil {
		return count, fmt.Errorf("closing mbox: %w", err)
	}
	return count, nil
}
