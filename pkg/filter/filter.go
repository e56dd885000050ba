// Package filter decides which messages are transaction alerts.
package filter

import (
	"strings"

	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/textfold"
)

// Config enables the filter rules. A rule with an empty list is disabled.
type Config struct {
	// Senders are exact mailbox addresses.
	Senders []string
	// SenderFragments are substrings looked up in the raw From header.
	SenderFragments []string
	// SubjectPhrases must occur in the subject; any one of them suffices.
	SubjectPhrases []string
	// SpamKeywords reject a message when found in its body.
	SpamKeywords []string
}

// Verdict explains a filter decision.
type Verdict struct {
	Accepted bool
	Rule     string
	Detail   string
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(rule, detail string) Verdict {
	return Verdict{Rule: rule, Detail: detail}
}

// Filter applies sender, subject and anti-spam rules.
type Filter struct {
	senders   map[string]struct{}
	fragments []string
	subjects  []string
	spam      []string
}

// New builds a Filter from cfg.
func New(cfg Config) *Filter {
	f := &Filter{
		senders:  make(map[string]struct{}, len(cfg.Senders)),
		subjects: nonEmpty(cfg.SubjectPhrases),
		spam:     nonEmpty(cfg.SpamKeywords),
	}
	for _, s := range cfg.Senders {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			f.senders[s] = struct{}{}
		}
	}
	for _, s := range nonEmpty(cfg.SenderFragments) {
		f.fragments = append(f.fragments, strings.ToLower(s))
	}
	return f
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Headers checks the sender and subject rules.
func (f *Filter) Headers(msg *api.RawMessage) Verdict {
	if len(f.senders) > 0 || len(f.fragments) > 0 {
		if !f.senderAllowed(msg) {
			return reject("sender", msg.From)
		}
	}
	if len(f.subjects) > 0 {
		if _, ok := textfold.ContainsAny(msg.Subject, f.subjects); !ok {
			return reject("subject", msg.Subject)
		}
	}
	return accept()
}

func (f *Filter) senderAllowed(msg *api.RawMessage) bool {
	if _, ok := f.senders[strings.ToLower(msg.Address)]; ok && msg.Address != "" {
		return true
	}
	from := strings.ToLower(msg.From)
	for _, frag := range f.fragments {
		if strings.Contains(from, frag) {
			return true
		}
	}
	return false
}

// Body checks the anti-spam rule against extracted text.
func (f *Filter) Body(text string) Verdict {
	if kw, ok := textfold.ContainsAny(text, f.spam); ok {
		return reject("spam", kw)
	}
	return accept()
}

// SingleSender returns the allow-listed address when exactly one sender is
// configured and no fragments are, so mailbox searches can be narrowed.
func (f *Filter) SingleSender() (string, bool) {
	if len(f.senders) != 1 || len(f.fragments) != 0 {
		return "", false
	}
	for s := range f.senders {
		return s, true
	}
	return "", false
}
