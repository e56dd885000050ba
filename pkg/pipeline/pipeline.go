// Package pipeline turns the messages of a mailbox into transactions.
//
// A run dials the mailbox, searches it, and fetches each message in order.
// Every message goes through the header filter, body extraction, the
// anti-spam filter and the configured parser. Each candidate must then
// pass the amount bounds and the date window before it is categorized.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ArionMiles/cardtx/pkg/amount"
	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/body"
	"github.com/ArionMiles/cardtx/pkg/categorize"
	"github.com/ArionMiles/cardtx/pkg/extract"
	"github.com/ArionMiles/cardtx/pkg/filter"
	"github.com/ArionMiles/cardtx/pkg/mailmsg"
	"github.com/ArionMiles/cardtx/pkg/window"
)

// ConnectError reports a failure to reach or use the mailbox. It is fatal
// for the run and never retried.
type ConnectError struct {
	Op  string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mailbox %s: %v", e.Op, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsConnectError reports whether err is or wraps a ConnectError.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}

// Stats counts what happened to messages and candidates during a run.
type Stats struct {
	Messages     int `json:"messages"`
	Malformed    int `json:"malformed"`
	Filtered     int `json:"filtered"`
	NoMatch      int `json:"no_match"`
	NotApproved  int `json:"not_approved"`
	Candidates   int `json:"candidates"`
	OutOfBounds  int `json:"out_of_bounds"`
	OutOfWindow  int `json:"out_of_window"`
	Transactions int `json:"transactions"`
}

// Result is the outcome of a run.
type Result struct {
	Month        window.Month
	Transactions []api.Transaction
	Stats        Stats
}

// Config holds the collaborators of a Pipeline.
type Config struct {
	Filter      *filter.Filter
	Parser      extract.Parser
	Bounds      amount.Bounds
	Month       window.Month
	Categorizer *categorize.RuleSet
	// Location is used for the mailbox search lower bound. Defaults to time.Local.
	Location *time.Location
}

// Pipeline extracts transactions from a mailbox.
type Pipeline struct {
	filter      *filter.Filter
	parser      extract.Parser
	bounds      amount.Bounds
	month       window.Month
	categorizer *categorize.RuleSet
	location    *time.Location
	logger      *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg.Parser == nil {
		return nil, errors.New("parser is required")
	}
	if cfg.Month.Year == 0 || cfg.Month.Month == 0 {
		return nil, errors.New("target month is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.New(filter.Config{})
	}
	if cfg.Categorizer == nil {
		cfg.Categorizer = categorize.New(nil, "")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	return &Pipeline{
		filter:      cfg.Filter,
		parser:      cfg.Parser,
		bounds:      cfg.Bounds,
		month:       cfg.Month,
		categorizer: cfg.Categorizer,
		location:    cfg.Location,
		logger:      logger,
	}, nil
}

// Criteria returns the server-side search narrowing for the target month.
func (p *Pipeline) Criteria() api.SearchCriteria {
	c := api.SearchCriteria{Since: p.month.Since(p.location)}
	if sender, ok := p.filter.SingleSender(); ok {
		c.From = sender
	}
	return c
}

// Run dials the mailbox and processes every message found by the search.
// The mailbox is logged out on every return path once dialed. Only
// mailbox failures and context cancellation are returned as errors.
func (p *Pipeline) Run(ctx context.Context, dialer api.Dialer) (*Result, error) {
	mbox, err := dialer.Dial(ctx)
	if err != nil {
		return nil, &ConnectError{Op: "dial", Err: err}
	}
	defer func() {
		if err := mbox.Logout(); err != nil {
			p.logger.Warn("failed to log out of mailbox", "error", err)
		}
	}()

	ids, err := mbox.Search(ctx, p.Criteria())
	if err != nil {
		return nil, &ConnectError{Op: "search", Err: err}
	}
	p.logger.Info("searched mailbox", "count", len(ids), "month", p.month.String())

	res := &Result{Month: p.month}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := mbox.Fetch(ctx, id)
		if err != nil {
			return nil, &ConnectError{Op: "fetch", Err: err}
		}
		res.Stats.Messages++

		msg, err := mailmsg.Parse(id, raw)
		if err != nil {
			res.Stats.Malformed++
			p.logger.Warn("skipping undecodable message", "message_id", id, "error", err)
			continue
		}

		res.Transactions = append(res.Transactions, p.process(msg, &res.Stats)...)
	}

	res.Stats.Transactions = len(res.Transactions)
	p.logger.Info("pipeline finished",
		"messages", res.Stats.Messages,
		"transactions", res.Stats.Transactions,
		"filtered", res.Stats.Filtered,
		"not_approved", res.Stats.NotApproved,
	)
	return res, nil
}

// Process extracts the transactions of a single parsed message.
func (p *Pipeline) Process(msg *api.RawMessage) []api.Transaction {
	var stats Stats
	return p.process(msg, &stats)
}

func (p *Pipeline) process(msg *api.RawMessage, stats *Stats) []api.Transaction {
	logger := p.logger.With("message_id", msg.ID)

	if v := p.filter.Headers(msg); !v.Accepted {
		stats.Filtered++
		logger.Debug("message filtered", "rule", v.Rule, "detail", v.Detail)
		return nil
	}

	text := body.Text(msg)
	if v := p.filter.Body(text); !v.Accepted {
		stats.Filtered++
		logger.Debug("message filtered", "rule", v.Rule, "detail", v.Detail)
		return nil
	}

	cands, err := p.parser.Parse(extract.Input{Text: text, Received: msg.Date})
	switch {
	case errors.Is(err, extract.ErrNotApproved):
		stats.NotApproved++
		logger.Info("transaction not approved, skipping")
		return nil
	case err != nil:
		stats.NoMatch++
		logger.Debug("no transaction found", "error", err)
		return nil
	}

	var txns []api.Transaction
	for i, c := range cands {
		stats.Candidates++
		if err := p.bounds.Check(c.Amount); err != nil {
			stats.OutOfBounds++
			logger.Debug("dropping candidate", "error", err)
			continue
		}
		if !p.month.Contains(c.Date) {
			stats.OutOfWindow++
			logger.Debug("dropping candidate outside month", "date", c.Date.String())
			continue
		}

		txns = append(txns, api.Transaction{
			Date:        c.Date,
			Time:        c.Time,
			Amount:      c.Amount,
			Currency:    c.Currency,
			Description: c.Description,
			Category:    p.categorizer.Categorize(c.Description),
			Source:      c.Strategy,
			MessageID:   msg.ID,
			Seq:         i,
		})
	}
	return txns
}
