// Package config loads the layered cardtx configuration.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/cardtx/pkg/amount"
	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/categorize"
	"github.com/ArionMiles/cardtx/pkg/extract"
	"github.com/ArionMiles/cardtx/pkg/filter"
	"github.com/ArionMiles/cardtx/pkg/window"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: CARDTX_EXTRACT__NORMALIZER=strict.
const EnvPrefix = "CARDTX_"

// EnvConfigFile names the environment variable holding an optional config file path.
const EnvConfigFile = "CARDTX_CONFIG"

//go:embed content/defaults.json
var defaultsJSON []byte

// Filter configures message admission.
type Filter struct {
	Senders         []string `koanf:"senders"`
	SenderFragments []string `koanf:"sender_fragments"`
	SubjectPhrases  []string `koanf:"subject_phrases"`
	SpamKeywords    []string `koanf:"spam_keywords"`
}

// Currency names a currency code and the markers that denote it in text.
type Currency struct {
	Code    string   `koanf:"code"`
	Markers []string `koanf:"markers"`
}

// Extract configures transaction extraction.
type Extract struct {
	Strategies      []string `koanf:"strategies"`
	Normalizer      string   `koanf:"normalizer"`
	LocalCurrency   Currency `koanf:"local_currency"`
	ForeignCurrency Currency `koanf:"foreign_currency"`
	TemplatePhrase  string   `koanf:"template_phrase"`
	ApprovalPhrase  string   `koanf:"approval_phrase"`
	Dedupe          bool     `koanf:"dedupe"`
}

// Category is one ordered categorization rule.
type Category struct {
	Label    string   `koanf:"label"`
	Keywords []string `koanf:"keywords"`
}

// OAuth locates Google OAuth material for the gmail reader and sheets writer.
type OAuth struct {
	SecretFile string `koanf:"secret_file"`
	TokenFile  string `koanf:"token_file"`
}

// Config holds the application configuration.
type Config struct {
	// Reader and Writer name the registered plugins to use.
	Reader string `koanf:"reader"`
	Writer string `koanf:"writer"`

	// Month is the target month as YYYY-MM. Empty selects the current month.
	Month string `koanf:"month"`
	// Timezone is an IANA zone name used for the search lower bound. Empty uses the local zone.
	Timezone string `koanf:"timezone"`
	// Ceiling is the exclusive upper bound on plausible amounts.
	Ceiling string `koanf:"ceiling"`
	// Report prints the monthly summary after writing.
	Report bool `koanf:"report"`

	Filter     Filter     `koanf:"filter"`
	Extract    Extract    `koanf:"extract"`
	Categories []Category `koanf:"categories"`
	Fallback   string     `koanf:"fallback_category"`
	OAuth      OAuth      `koanf:"oauth"`

	// ReaderConfig and WriterConfig are the JSON sections
	// readers.<Reader> and writers.<Writer>.
	ReaderConfig json.RawMessage `koanf:"-"`
	WriterConfig json.RawMessage `koanf:"-"`

	readers map[string]json.RawMessage
	writers map[string]json.RawMessage
}

// Load reads embedded defaults, then the file at path (if non-empty), then
// CARDTX_ environment variables. Later layers win.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsJSON), kjson.Parser()); err != nil {
		return nil, fmt.Errorf("loading embedded defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	var err error
	if cfg.readers, err = sections(k, "readers"); err != nil {
		return nil, err
	}
	if cfg.writers, err = sections(k, "writers"); err != nil {
		return nil, err
	}
	cfg.Select(cfg.Reader, cfg.Writer)

	return &cfg, nil
}

// Select switches the reader and writer plugins and their config sections.
// Empty names keep the current selection.
func (c *Config) Select(reader, writer string) {
	if reader != "" {
		c.Reader = reader
		c.ReaderConfig = c.readers[reader]
	}
	if writer != "" {
		c.Writer = writer
		c.WriterConfig = c.writers[writer]
	}
}

// LoadFromEnv loads configuration with the file path taken from CARDTX_CONFIG.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(EnvConfigFile))
}

// envValue maps CARDTX_EXTRACT__DEDUPE to extract.dedupe. Values that look
// like JSON arrays or objects are decoded so lists can be overridden.
func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	v := strings.TrimSpace(value)
	if strings.HasPrefix(v, "[") || strings.HasPrefix(v, "{") {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			return key, decoded
		}
	}
	return key, value
}

// sections encodes each child of group, e.g. readers.imap, as JSON.
func sections(k *koanf.Koanf, group string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	for _, name := range k.MapKeys(group) {
		path := group + "." + name
		b, err := k.Cut(path).Marshal(kjson.Parser())
		if err != nil {
			return nil, fmt.Errorf("encoding %s config: %w", path, err)
		}
		out[name] = b
	}
	return out, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Reader == "" {
		problems = append(problems, "reader plugin is required")
	}
	if c.Writer == "" {
		problems = append(problems, "writer plugin is required")
	}
	if _, err := window.Parse(c.Month, time.Now()); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Bounds(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(c.Filter.Senders) == 0 && len(c.Filter.SenderFragments) == 0 {
		problems = append(problems, "at least one sender or sender fragment is required")
	}
	if c.Extract.LocalCurrency.Code == "" {
		problems = append(problems, "local currency code is required")
	}
	if c.Extract.ForeignCurrency.Code == "" {
		problems = append(problems, "foreign currency code is required")
	}
	if c.Extract.LocalCurrency.Code != "" && c.Extract.LocalCurrency.Code == c.Extract.ForeignCurrency.Code {
		problems = append(problems, "local and foreign currency codes must differ")
	}
	for i, cat := range c.Categories {
		if strings.TrimSpace(cat.Label) == "" {
			problems = append(problems, fmt.Sprintf("category %d has no label", i))
		}
	}
	if _, err := c.Parser(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
}

// TargetMonth resolves Month against now.
func (c *Config) TargetMonth(now time.Time) (window.Month, error) {
	return window.Parse(c.Month, now)
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Bounds returns the amount sanity bounds.
func (c *Config) Bounds() (amount.Bounds, error) {
	if strings.TrimSpace(c.Ceiling) == "" {
		return amount.Bounds{}, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(c.Ceiling))
	if err != nil {
		return amount.Bounds{}, fmt.Errorf("parsing ceiling %q: %w", c.Ceiling, err)
	}
	if !d.IsPositive() {
		return amount.Bounds{}, fmt.Errorf("ceiling must be positive, got %s", d)
	}
	return amount.Bounds{Ceiling: d}, nil
}

// FilterConfig returns the message filter settings.
func (c *Config) FilterConfig() filter.Config {
	return filter.Config{
		Senders:         c.Filter.Senders,
		SenderFragments: c.Filter.SenderFragments,
		SubjectPhrases:  c.Filter.SubjectPhrases,
		SpamKeywords:    c.Filter.SpamKeywords,
	}
}

// Parser builds the configured extraction parser.
func (c *Config) Parser() (extract.Parser, error) {
	policy, err := amount.ParsePolicy(c.Extract.Normalizer)
	if err != nil {
		return nil, err
	}
	return extract.New(extract.Config{
		Strategies: c.Extract.Strategies,
		Policy:     policy,
		Local: extract.CurrencyMarkers{
			Code:    api.Currency(c.Extract.LocalCurrency.Code),
			Markers: c.Extract.LocalCurrency.Markers,
		},
		Foreign: extract.CurrencyMarkers{
			Code:    api.Currency(c.Extract.ForeignCurrency.Code),
			Markers: c.Extract.ForeignCurrency.Markers,
		},
		TemplatePhrase: c.Extract.TemplatePhrase,
		ApprovalPhrase: c.Extract.ApprovalPhrase,
		Dedupe:         c.Extract.Dedupe,
	})
}

// Categorizer builds the ordered category rule set.
func (c *Config) Categorizer() *categorize.RuleSet {
	rules := make([]categorize.Rule, 0, len(c.Categories))
	for _, cat := range c.Categories {
		rules = append(rules, categorize.Rule{Label: cat.Label, Keywords: cat.Keywords})
	}
	return categorize.New(rules, c.Fallback)
}
