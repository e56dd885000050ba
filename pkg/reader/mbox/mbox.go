// Package mbox implements a mailbox reader over a local mbox file.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/emersion/go-mbox"

	"github.com/ArionMiles/cardtx/pkg/api"
)

// Config holds configuration for the mbox reader.
type Config struct {
	Path string
}

// Reader opens an mbox file as a mailbox.
type Reader struct {
	path   string
	logger *slog.Logger
}

// New creates a new mbox reader.
func New(cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, errors.New("mbox path is required")
	}
	return &Reader{path: cfg.Path, logger: logger}, nil
}

// Dial opens the file and reads every message into memory.
func (r *Reader) Dial(ctx context.Context) (api.Mailbox, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("opening mbox: %w", err)
	}
	defer f.Close()

	msgs, err := ReadAll(ctx, f)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("mbox loaded", "path", r.path, "count", len(msgs))
	return &session{msgs: msgs}, nil
}

// ReadAll reads every message of an mbox stream.
func ReadAll(ctx context.Context, rd io.Reader) ([][]byte, error) {
	mr := mbox.NewReader(rd)
	var msgs [][]byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return msgs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading mbox message %d: %w", len(msgs)+1, err)
		}
		raw, err := io.ReadAll(m)
		if err != nil {
			return nil, fmt.Errorf("reading mbox message %d: %w", len(msgs)+1, err)
		}
		msgs = append(msgs, raw)
	}
}

// session serves messages by their 1-based position in the file.
// Search criteria are not applied; the pipeline filters client-side.
type session struct {
	msgs [][]byte
}

func (s *session) Search(ctx context.Context, _ api.SearchCriteria) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, len(s.msgs))
	for i := range s.msgs {
		ids[i] = strconv.Itoa(i + 1)
	}
	return ids, nil
}

func (s *session) Fetch(_ context.Context, id string) ([]byte, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 1 || n > len(s.msgs) {
		return nil, fmt.Errorf("message %q not found", id)
	}
	return s.msgs[n-1], nil
}

func (s *session) Logout() error {
	s.msgs = nil
	return nil
}
