// Package amount turns amount literals found in alert text into decimal values.
//
// Bank alerts mix two conventions: "1,234.56" (comma thousands, dot decimal)
// and "1.234,56" (dot thousands, comma decimal). The Heuristic policy decides
// per literal which separator is the decimal point; the Strict policy only
// accepts the comma-thousands form.
package amount

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for literals that are not numbers.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOutOfBounds is returned for amounts outside (0, ceiling).
	ErrOutOfBounds = errors.New("amount out of bounds")
)

// DefaultCeiling is the exclusive upper bound applied when none is configured.
var DefaultCeiling = decimal.NewFromInt(10_000_000)

var (
	literalPattern = regexp.MustCompile(`^[\d.,]+$`)
	canonical      = regexp.MustCompile(`^\d+(\.\d+)?$`)
	commaDecimal   = regexp.MustCompile(`^\d+,\d{2}$`)
)

// Policy selects how separators are interpreted.
type Policy int

const (
	// Heuristic treats the last separator as decimal when both are present,
	// and otherwise decides from the number of trailing digits.
	Heuristic Policy = iota
	// Strict strips commas and requires a dot decimal point, if any.
	Strict
)

// ParsePolicy maps a configuration name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "heuristic":
		return Heuristic, nil
	case "strict":
		return Strict, nil
	default:
		return 0, fmt.Errorf("unknown normalizer policy %q", name)
	}
}

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "heuristic"
}

// Normalize converts raw into a decimal using the policy.
func (p Policy) Normalize(raw string) (decimal.Decimal, error) {
	if p == Strict {
		return NormalizeStrict(raw)
	}
	return Normalize(raw)
}

// Normalize converts raw using the heuristic rules:
//   - both '.' and ',' present: the one occurring last is the decimal point
//   - only ',': decimal when a single comma is followed by exactly two digits
//   - only '.': decimal when the last group has exactly two digits
//
// "1,234" has three trailing digits and is read as 1234.
func Normalize(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if !literalPattern.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if commaDecimal.MatchString(s) {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if len(s)-lastDot-1 == 2 {
			s = strings.ReplaceAll(s[:lastDot], ".", "") + s[lastDot:]
		} else {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	return parseCanonical(s, raw)
}

// NormalizeStrict strips commas and parses the remainder.
func NormalizeStrict(raw string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	return parseCanonical(s, raw)
}

func parseCanonical(s, raw string) (decimal.Decimal, error) {
	if !canonical.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, raw, err)
	}
	return d, nil
}

// Bounds is the sanity range for transaction amounts.
type Bounds struct {
	// Ceiling is exclusive. A zero ceiling means DefaultCeiling.
	Ceiling decimal.Decimal
}

// Check returns ErrOutOfBounds unless 0 < d < ceiling.
func (b Bounds) Check(d decimal.Decimal) error {
	ceiling := b.Ceiling
	if ceiling.IsZero() {
		ceiling = DefaultCeiling
	}
	if !d.IsPositive() || !d.LessThan(ceiling) {
		return fmt.Errorf("%w: %s", ErrOutOfBounds, d.String())
	}
	return nil
}
