// Package gmail implements a mailbox reader over the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/cardtx/pkg/api"
)

// Config holds configuration for the Gmail reader.
type Config struct {
	// User is the mailbox owner. Defaults to "me".
	User string
	// Query is appended to the generated search query, e.g. "label:alerts".
	Query string
	// PageSize bounds each list call. Defaults to 100.
	PageSize int64
	// Endpoint overrides the API endpoint.
	Endpoint string
}

// Reader opens Gmail mailbox sessions.
type Reader struct {
	client *gmail.Service
	cfg    Config
	logger *slog.Logger
}

// New creates a new Gmail reader.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		return nil, errors.New("gmail reader requires an authorized http client")
	}
	if cfg.User == "" {
		cfg.User = "me"
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 100
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := gmail.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &Reader{client: client, cfg: cfg, logger: logger}, nil
}

// Dial verifies access to the mailbox and returns a session.
func (r *Reader) Dial(ctx context.Context) (api.Mailbox, error) {
	profile, err := r.client.Users.GetProfile(r.cfg.User).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting gmail profile: %w", err)
	}
	r.logger.Debug("gmail session opened", "email", profile.EmailAddress)
	return r, nil
}

// Search lists message ids matching criteria, oldest first.
func (r *Reader) Search(ctx context.Context, criteria api.SearchCriteria) ([]string, error) {
	q := query(criteria, r.cfg.Query)
	r.logger.Debug("listing messages", "query", q)

	var ids []string
	err := r.client.Users.Messages.List(r.cfg.User).Q(q).MaxResults(r.cfg.PageSize).Pages(ctx,
		func(resp *gmail.ListMessagesResponse) error {
			for _, m := range resp.Messages {
				ids = append(ids, m.Id)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	// The API lists newest first.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, nil
}

// Fetch returns the raw RFC 5322 bytes of a message.
func (r *Reader) Fetch(ctx context.Context, id string) ([]byte, error) {
	msg, err := r.client.Users.Messages.Get(r.cfg.User, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}

	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(msg.Raw)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding message %s: %w", id, err)
	}
	return raw, nil
}

// Logout is a no-op; API sessions are stateless.
func (r *Reader) Logout() error { return nil }

// query builds a Gmail search query from criteria.
func query(c api.SearchCriteria, extra string) string {
	var parts []string
	if !c.Since.IsZero() {
		parts = append(parts, "after:"+c.Since.Format("2006/01/02"))
	}
	if c.From != "" {
		parts = append(parts, "from:"+c.From)
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		parts = append(parts, extra)
	}
	return strings.Join(parts, " ")
}
