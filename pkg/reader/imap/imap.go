// Package imap implements a mailbox reader over IMAP.
package imap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/ArionMiles/cardtx/pkg/api"
)

// ErrAuth is returned when the server rejects the credentials.
var ErrAuth = errors.New("imap authentication failed")

// Config holds IMAP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Folder defaults to INBOX.
	Folder string
	// StartTLS upgrades a plain connection instead of dialing TLS directly.
	StartTLS bool
}

// Reader dials IMAP sessions.
type Reader struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a new IMAP reader.
func New(cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		return nil, errors.New("imap host is required")
	}
	if cfg.Username == "" {
		return nil, errors.New("imap username is required")
	}
	if cfg.Password == "" {
		return nil, errors.New("imap password is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}

	return &Reader{cfg: cfg, logger: logger}, nil
}

// Dial connects, logs in and selects the folder read-only.
func (r *Reader) Dial(ctx context.Context) (api.Mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port))

	var (
		client *imapclient.Client
		err    error
	)
	if r.cfg.StartTLS {
		client, err = imapclient.DialStartTLS(addr, nil)
	} else {
		client, err = imapclient.DialTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	if err := client.Login(r.cfg.Username, r.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w for %s: %v", ErrAuth, r.cfg.Username, err)
	}

	if _, err := client.Select(r.cfg.Folder, &goimap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, fmt.Errorf("selecting %s: %w", r.cfg.Folder, err)
	}

	r.logger.Debug("imap session opened", "addr", addr, "folder", r.cfg.Folder)
	return &session{client: client, logger: r.logger}, nil
}

type session struct {
	client *imapclient.Client
	logger *slog.Logger
}

func (s *session) Search(ctx context.Context, criteria api.SearchCriteria) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.client.UIDSearch(searchCriteria(criteria), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	uids := data.AllUIDs()
	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = strconv.FormatUint(uint64(uid), 10)
	}
	return ids, nil
}

func (s *session) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parsing uid %q: %w", id, err)
	}

	section := &goimap.FetchItemBodySection{Peek: true}
	msgs, err := s.client.Fetch(goimap.UIDSetNum(goimap.UID(uid)), &goimap.FetchOptions{
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching uid %s: %w", id, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message uid %s not found", id)
	}

	return msgs[0].FindBodySection(section), nil
}

func (s *session) Logout() error {
	err := s.client.Logout().Wait()
	return errors.Join(err, s.client.Close())
}

// searchCriteria maps api criteria onto an IMAP SEARCH.
func searchCriteria(c api.SearchCriteria) *goimap.SearchCriteria {
	sc := &goimap.SearchCriteria{}
	if !c.Since.IsZero() {
		sc.Since = c.Since
	}
	if c.From != "" {
		sc.Header = append(sc.Header, goimap.SearchCriteriaHeaderField{Key: "From", Value: c.From})
	}
	return sc
}
