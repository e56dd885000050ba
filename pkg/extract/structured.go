package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/ArionMiles/cardtx/pkg/amount"
	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/textfold"
)

// DefaultApprovalPhrase confirms that an alert reports an approved charge.
const DefaultApprovalPhrase = "fue aprobada"

// structuredTemplate matches accent-stripped alert text such as
//
//	... la transaccion realizada en STORE X, el dia 05/03/2024 a 02:30 PM ... por CRC 1,250.00
//
// %s is replaced by the alternation of accepted currency codes.
const structuredTemplate = `(?is)transaccion realizada en\s+(?P<merchant>.+?),\s+el dia\s+` +
	`(?P<date>\d{2}/\d{2}/\d{4})\s+a\s+(?P<time>\d{1,2}:\d{2}\s*[ap]m)` +
	`.*?por\s+(?P<currency>%s)\s+(?P<amount>\d{1,3}(?:,\d{3})*\.\d{2})`

const dateTimeLayout = "02/01/2006 3:04PM"

// StructuredConfig configures the Structured parser.
type StructuredConfig struct {
	// Currencies is the closed set of codes the template accepts.
	Currencies     []api.Currency
	TemplatePhrase string
	// ApprovalPhrase defaults to DefaultApprovalPhrase.
	ApprovalPhrase string
	Policy         amount.Policy
}

// Structured parses the fixed bank alert template.
type Structured struct {
	pattern  *regexp.Regexp
	template string
	approval string
	policy   amount.Policy
	codes    map[string]api.Currency
}

// NewStructured compiles the template for the configured currencies.
func NewStructured(cfg StructuredConfig) (*Structured, error) {
	codes := make(map[string]api.Currency, len(cfg.Currencies))
	alts := make([]string, 0, len(cfg.Currencies))
	for _, c := range cfg.Currencies {
		code := strings.ToUpper(strings.TrimSpace(string(c)))
		if code == "" {
			continue
		}
		if _, dup := codes[code]; dup {
			continue
		}
		codes[code] = api.Currency(code)
		alts = append(alts, regexp.QuoteMeta(code))
	}
	if len(alts) == 0 {
		return nil, errors.New("no currencies configured")
	}

	pattern, err := regexp.Compile(fmt.Sprintf(structuredTemplate, strings.Join(alts, "|")))
	if err != nil {
		return nil, fmt.Errorf("compiling template: %w", err)
	}

	approval := cfg.ApprovalPhrase
	if approval == "" {
		approval = DefaultApprovalPhrase
	}

	return &Structured{
		pattern:  pattern,
		template: cfg.TemplatePhrase,
		approval: approval,
		policy:   cfg.Policy,
		codes:    codes,
	}, nil
}

// Name returns "structured".
func (s *Structured) Name() string { return StrategyStructured }

// Parse returns the single candidate described by the alert template.
// Text that does not match yields ErrNoMatch. Text that carries the template
// phrase or matches the pattern, but lacks the approval phrase, yields
// ErrNotApproved.
func (s *Structured) Parse(in Input) ([]api.Candidate, error) {
	approved := textfold.Contains(in.Text, s.approval)
	templated := s.template == "" || textfold.Contains(in.Text, s.template)

	// The template identifies the bank's alert; an unapproved one is
	// rejected even if the rest of the template does not line up.
	if s.template != "" && templated && !approved {
		return nil, ErrNotApproved
	}

	folded := textfold.Fold(in.Text)
	m := s.pattern.FindStringSubmatchIndex(folded.Text)
	if m == nil {
		return nil, ErrNoMatch
	}
	// A pattern match without approval is a declined alert, with or without
	// the bank's greeting.
	if !approved {
		return nil, ErrNotApproved
	}
	if !templated {
		return nil, ErrNoMatch
	}

	group := func(name string) string {
		i := s.pattern.SubexpIndex(name)
		return strings.TrimSpace(folded.Original(m[2*i], m[2*i+1]))
	}
	merchant, date, clock := group("merchant"), group("date"), group("time")
	currency, literal := group("currency"), group("amount")
	if merchant == "" || date == "" || clock == "" || currency == "" || literal == "" {
		return nil, ErrNoMatch
	}

	dt, err := ParseDateTime(date, clock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMatch, err)
	}
	value, err := s.policy.Normalize(literal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMatch, err)
	}

	return []api.Candidate{{
		Date:        dt.Date,
		Time:        &dt.Time,
		Amount:      value,
		Currency:    s.codes[strings.ToUpper(currency)],
		Description: merchant,
		Strategy:    StrategyStructured,
	}}, nil
}

// ParseDateTime parses a DD/MM/YYYY date and a 12-hour HH:MM AM|PM time.
func ParseDateTime(date, clock string) (civil.DateTime, error) {
	clock = strings.ToUpper(strings.Join(strings.Fields(clock), ""))
	t, err := time.Parse(dateTimeLayout, date+" "+clock)
	if err != nil {
		return civil.DateTime{}, fmt.Errorf("parsing date %q %q: %w", date, clock, err)
	}
	return civil.DateTimeOf(t), nil
}
