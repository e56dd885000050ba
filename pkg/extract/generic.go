package extract

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"cloud.google.com/go/civil"

	"github.com/ArionMiles/cardtx/pkg/amount"
	"github.com/ArionMiles/cardtx/pkg/api"
)

var (
	bareAmount = regexp.MustCompile(`\b(?:\d{1,3}(?:[.,]\d{3})+|\d+)[.,]\d{2}\b`)
	lineDate   = regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`)
)

// GenericConfig configures the Generic scanner.
type GenericConfig struct {
	Local   CurrencyMarkers
	Foreign CurrencyMarkers
	Policy  amount.Policy
}

// Generic scans text line by line for amounts. It over-generates on
// purpose: every currency-prefixed number on a line is a candidate, and
// lines without one fall back to bare decimal literals in local currency.
type Generic struct {
	marked  *regexp.Regexp
	markers map[string]api.Currency
	local   api.Currency
	policy  amount.Policy
}

// NewGeneric compiles the marker pattern for the configured currencies.
func NewGeneric(cfg GenericConfig) (*Generic, error) {
	if cfg.Local.Code == "" {
		return nil, errors.New("local currency code is required")
	}

	g := &Generic{
		markers: make(map[string]api.Currency),
		local:   cfg.Local.Code,
		policy:  cfg.Policy,
	}
	for _, cm := range []CurrencyMarkers{cfg.Local, cfg.Foreign} {
		for _, m := range cm.Markers {
			if m = strings.TrimSpace(m); m != "" {
				g.markers[strings.ToUpper(m)] = cm.Code
			}
		}
	}
	if len(g.markers) == 0 {
		return nil, errors.New("no currency markers configured")
	}

	keys := make([]string, 0, len(g.markers))
	for k := range g.markers {
		keys = append(keys, k)
	}
	// Longest first so "US$" wins over "$".
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	alts := make([]string, len(keys))
	for i, k := range keys {
		alts[i] = regexp.QuoteMeta(k)
		if r, _ := utf8.DecodeRuneInString(k); unicode.IsLetter(r) {
			alts[i] = `\b` + alts[i]
		}
	}
	alt := strings.Join(alts, "|")

	// A marker may be doubled, as in "USD $45.90"; the first one decides.
	marked, err := regexp.Compile(`(?i)(` + alt + `)(?:\s*(?:` + alt + `))?\s*(\d(?:[\d.,]*\d)?)`)
	if err != nil {
		return nil, fmt.Errorf("compiling marker pattern: %w", err)
	}
	g.marked = marked
	return g, nil
}

// Name returns "generic".
func (g *Generic) Name() string { return StrategyGeneric }

// Parse returns candidates for every amount found. Lines with a DD/MM/YYYY
// date use it; other lines use the received date. Amounts that fail to
// normalize and lines with invalid dates are skipped.
func (g *Generic) Parse(in Input) ([]api.Candidate, error) {
	var received civil.Date
	if !in.Received.IsZero() {
		received = civil.DateOf(in.Received)
	}

	var cands []api.Candidate
	for _, line := range strings.Split(in.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		date := received
		if lit := lineDate.FindString(line); lit != "" {
			t, err := time.Parse("02/01/2006", lit)
			if err != nil {
				continue
			}
			date = civil.DateOf(t)
		}
		if date.IsZero() {
			continue
		}

		for _, c := range g.scanLine(line) {
			c.Date = date
			cands = append(cands, c)
		}
	}

	if len(cands) == 0 {
		return nil, ErrNoMatch
	}
	return cands, nil
}

func (g *Generic) scanLine(line string) []api.Candidate {
	var cands []api.Candidate
	for _, m := range g.marked.FindAllStringSubmatch(line, -1) {
		value, err := g.policy.Normalize(m[2])
		if err != nil {
			continue
		}
		cands = append(cands, api.Candidate{
			Amount:      value,
			Currency:    g.markers[strings.ToUpper(m[1])],
			Description: line,
			Strategy:    StrategyGeneric,
		})
	}
	if len(cands) > 0 {
		return cands
	}

	for _, lit := range bareAmount.FindAllString(line, -1) {
		value, err := g.policy.Normalize(lit)
		if err != nil {
			continue
		}
		cands = append(cands, api.Candidate{
			Amount:      value,
			Currency:    g.local,
			Description: line,
			Strategy:    StrategyGeneric,
		})
	}
	return cands
}
