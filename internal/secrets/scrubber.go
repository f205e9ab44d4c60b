// Package secrets redacts credentials from text before it leaves the process.
//
// The agent reads project files that often contain .env values, connection
// strings and API tokens. Everything read_file returns passes through a
// Scrubber first, so the model only ever sees the redaction marker.
package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Config configures a Scrubber.
type Config struct {
	Enabled bool

	// Redaction replaces each match. Defaults to DefaultRedaction.
	Redaction string

	// AllowList holds patterns; a match also matching one of them is kept.
	AllowList []string

	// Rules defaults to DefaultRules when empty.
	Rules []Rule
}

// Rule is one detection pattern.
type Rule struct {
	ID      string
	Pattern string

	// Keywords gate the rule: when set, at least one must occur in the
	// content (case-insensitive) for the pattern to be tried.
	Keywords []string
}

// Finding locates one redacted secret. The secret itself is never kept.
type Finding struct {
	RuleID string
	Line   int
	Start  int
	End    int
}

// Result is the outcome of Scrub.
type Result struct {
	Scrubbed string
	Findings []Finding
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []string
}

// Scrubber detects and redacts secrets. It is safe for concurrent use.
type Scrubber struct {
	enabled   bool
	redaction string
	rules     []compiledRule
	allow     []*regexp.Regexp
}

// New compiles cfg into a Scrubber.
func New(cfg Config) (*Scrubber, error) {
	s := &Scrubber{enabled: cfg.Enabled, redaction: cfg.Redaction}
	if s.redaction == "" {
		s.redaction = DefaultRedaction
	}
	if !s.enabled {
		return s, nil
	}

	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("secrets: rule %d has no id", i)
		}
		if r.Pattern == "" {
			return nil, fmt.Errorf("secrets: rule %s has no pattern", r.ID)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("secrets: rule %s: %w", r.ID, err)
		}
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		s.rules = append(s.rules, compiledRule{id: r.ID, pattern: re, keywords: kws})
	}

	for i, p := range cfg.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("secrets: allow_list %d: %w", i, err)
		}
		s.allow = append(s.allow, re)
	}
	return s, nil
}

// Enabled reports whether the scrubber redacts anything.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

// Scrub returns content with every detected secret replaced. Overlapping
// matches collapse into a single redaction.
func (s *Scrubber) Scrub(content string) Result {
	res := Result{Scrubbed: content}
	if !s.Enabled() || content == "" {
		return res
	}

	lower := strings.ToLower(content)
	var spans [][2]int
	for _, r := range s.rules {
		if !hasKeyword(lower, r.keywords) {
			continue
		}
		for _, m := range r.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID: r.id,
				Line:   strings.Count(content[:m[0]], "\n") + 1,
				Start:  m[0],
				End:    m[1],
			})
			spans = append(spans, [2]int{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return res
	}

	var b strings.Builder
	prev := 0
	for _, sp := range merge(spans) {
		b.WriteString(content[prev:sp[0]])
		b.WriteString(s.redaction)
		prev = sp[1]
	}
	b.WriteString(content[prev:])
	res.Scrubbed = b.String()
	return res
}

// Redact is Scrub reduced to the redacted text and the number of findings.
func (s *Scrubber) Redact(content string) (string, int) {
	res := s.Scrub(content)
	return res.Scrubbed, len(res.Findings)
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

func hasKeyword(lower string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// merge sorts spans and joins overlapping or adjacent ones.
func merge(spans [][2]int) [][2]int {
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	out := [][2]int{spans[0]}
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp[0] <= last[1] {
			if sp[1] > last[1] {
				last[1] = sp[1]
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}
