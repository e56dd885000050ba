// Package json implements a Writer that writes transactions to a JSON file.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ArionMiles/cardtx/pkg/api"
)

// Writer writes the transactions of a run to a JSON file as one array,
// replacing previous contents.
type Writer struct {
	filePath string
	logger   *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath string
}

// New creates a new JSON writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, errors.New("json file path is required")
	}

	logger.Info("json writer initialized", "file", cfg.FilePath)
	return &Writer{filePath: cfg.FilePath, logger: logger}, nil
}

// Write marshals txns and replaces the file atomically.
func (w *Writer) Write(ctx context.Context, txns []api.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if txns == nil {
		txns = []api.Transaction{}
	}

	data, err := json.MarshalIndent(txns, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	tmp := w.filePath + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}
	if err := os.Rename(tmp, w.filePath); err != nil {
		return fmt.Errorf("replacing json file: %w", err)
	}

	w.logger.Debug("wrote transactions to json", "count", len(txns))
	return nil
}
