package a2a

import (
	"regexp"
	"sort"
	"strings"
)

// Address form names.
const (
	FormAtMention        = "at-mention"
	FormLeadingVocative  = "leading-vocative"
	FormTrailingVocative = "trailing-vocative"
	FormHandoffBefore    = "handoff-before"
	FormHandoffAfter     = "handoff-after"
	FormBareQuestion     = "bare-question"
)

// addressTemplates lists the recognized forms in match order. {name} expands to an
// alternation of the agent's names; every template is compiled case-insensitive.
var addressTemplates = []struct {
	form    string
	pattern string
}{
	{FormAtMention, `@{name}\b`},
	{FormLeadingVocative, `(?:^|[.!?;:\n]\s*)\s*{name}\s*[,:]`},
	{FormTrailingVocative, `,\s*{name}\s*(?:[.!?]|$)`},
	{FormHandoffBefore, `\b(?:over to|go ahead|next up:?|next:|passing (?:it )?to|pass(?: it)? to|handing (?:it )?(?:over )?to|your turn|floor is yours|floor to|hear from|calling on)\s*,?\s*{name}\b`},
	{FormHandoffAfter, `\b{name}\s*[,—–-]?\s+(?:you(?:'|’)?re up|go ahead|go\b|your turn|what do you (?:see|think)|can you|could you|would you|please|take it|over to you)`},
	{FormBareQuestion, `(?:^|[.!?]\s+)\s*{name}\s*\?`},
}

type addressForm struct {
	name string
	re   *regexp.Regexp
}

// AddressMatcher detects whether a text addresses one agent by any of its names.
type AddressMatcher struct {
	forms []addressForm
}

// NewAddressMatcher compiles the address forms for the given names. With no usable
// names the matcher never matches.
func NewAddressMatcher(names []string) *AddressMatcher {
	alt := nameAlternation(names)
	if alt == "" {
		return &AddressMatcher{}
	}
	forms := make([]addressForm, 0, len(addressTemplates))
	for _, t := range addressTemplates {
		p := `(?i)` + strings.ReplaceAll(t.pattern, "{name}", alt)
		forms = append(forms, addressForm{name: t.form, re: regexp.MustCompile(p)})
	}
	return &AddressMatcher{forms: forms}
}

// Match returns the first form that addresses the agent.
func (m *AddressMatcher) Match(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, f := range m.forms {
		if f.re.MatchString(text) {
			return f.name, true
		}
	}
	return "", false
}

// Addresses reports whether text addresses the agent through any recognized form.
func (m *AddressMatcher) Addresses(text string) bool {
	_, ok := m.Match(text)
	return ok
}

// Forms lists the recognized address form names in match order.
func Forms() []string {
	out := make([]string, len(addressTemplates))
	for i, t := range addressTemplates {
		out[i] = t.form
	}
	return out
}

// nameAlternation builds "(?:long|short)" from names, longest first so aliases that
// prefix one another match greedily.
func nameAlternation(names []string) string {
	seen := make(map[string]bool)
	var quoted []string
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		quoted = append(quoted, regexp.QuoteMeta(n))
	}
	if len(quoted) == 0 {
		return ""
	}
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return "(?:" + strings.Join(quoted, "|") + ")"
}
