// Package extract finds transaction candidates in alert text.
//
// Two strategies are provided. Structured matches the fixed template of a
// known bank alert and yields at most one candidate. Generic scans every
// line for currency-prefixed or decimal-looking amounts and may yield many.
// Chain tries strategies in order until one applies.
package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArionMiles/cardtx/pkg/amount"
	"github.com/ArionMiles/cardtx/pkg/api"
)

var (
	// ErrNoMatch means the strategy does not apply to the text.
	// A Chain moves on to the next strategy.
	ErrNoMatch = errors.New("no transaction found")
	// ErrNotApproved means the text is an alert for a transaction that was
	// not approved. A Chain stops and the message yields nothing.
	ErrNotApproved = errors.New("transaction not approved")
)

// Strategy names accepted in configuration.
const (
	StrategyStructured = "structured"
	StrategyGeneric    = "generic"
)

// Input is the text of one message plus the context needed to date it.
type Input struct {
	Text     string
	Received time.Time
}

// Parser extracts candidates from message text.
type Parser interface {
	Name() string
	Parse(in Input) ([]api.Candidate, error)
}

// CurrencyMarkers binds a currency code to the markers that denote it in
// text, e.g. "USD", "US$" and "$".
type CurrencyMarkers struct {
	Code    api.Currency
	Markers []string
}

// Config selects and configures strategies.
type Config struct {
	// Strategies in the order they are tried.
	Strategies []string
	Policy     amount.Policy
	Local      CurrencyMarkers
	Foreign    CurrencyMarkers
	// TemplatePhrase, when set, must occur in the text for Structured to apply.
	TemplatePhrase string
	// ApprovalPhrase must occur in text matched by Structured.
	ApprovalPhrase string
	// Dedupe collapses identical candidates within a message.
	Dedupe bool
}

// New builds the parser described by cfg.
func New(cfg Config) (Parser, error) {
	if len(cfg.Strategies) == 0 {
		return nil, errors.New("no extraction strategies configured")
	}

	parsers := make([]Parser, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case StrategyStructured:
			p, err := NewStructured(StructuredConfig{
				Currencies:     []api.Currency{cfg.Local.Code, cfg.Foreign.Code},
				TemplatePhrase: cfg.TemplatePhrase,
				ApprovalPhrase: cfg.ApprovalPhrase,
				Policy:         cfg.Policy,
			})
			if err != nil {
				return nil, fmt.Errorf("building structured parser: %w", err)
			}
			parsers = append(parsers, p)
		case StrategyGeneric:
			p, err := NewGeneric(GenericConfig{
				Local:   cfg.Local,
				Foreign: cfg.Foreign,
				Policy:  cfg.Policy,
			})
			if err != nil {
				return nil, fmt.Errorf("building generic parser: %w", err)
			}
			parsers = append(parsers, p)
		default:
			return nil, fmt.Errorf("unknown extraction strategy %q", name)
		}
	}

	var p Parser
	if len(parsers) == 1 {
		p = parsers[0]
	} else {
		p = Chain(parsers...)
	}
	if cfg.Dedupe {
		p = Dedupe(p)
	}
	return p, nil
}

type chain []Parser

// Chain tries parsers in order. The first parser that does not return
// ErrNoMatch decides the result.
func Chain(parsers ...Parser) Parser {
	return chain(parsers)
}

func (c chain) Name() string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

func (c chain) Parse(in Input) ([]api.Candidate, error) {
	for _, p := range c {
		cands, err := p.Parse(in)
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		return cands, err
	}
	return nil, ErrNoMatch
}

type dedupe struct {
	Parser
}

// Dedupe wraps p so that candidates with the same date, amount, currency
// and description are reported once.
func Dedupe(p Parser) Parser {
	return dedupe{Parser: p}
}

func (d dedupe) Parse(in Input) ([]api.Candidate, error) {
	cands, err := d.Parser.Parse(in)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(cands))
	out := cands[:0]
	for _, c := range cands {
		key := strings.Join([]string{c.Date.String(), c.Amount.String(), string(c.Currency), c.Description}, "\x00")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}
