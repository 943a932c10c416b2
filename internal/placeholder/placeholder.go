// Package placeholder finds variable tokens inside template text. Tokens use
// double or triple braces, `{{name}}`, `{{name:argument}}`, `{{{name}}}` and
// `{{{name:argument}}}`; the two forms are never mixed within one token.
package placeholder

import (
	"regexp"
	"strings"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

// Triple-brace alternatives come first so `{{{x}}}` is matched whole instead
// of as `{` + `{{x}}` + `}`.
var tokenPattern = regexp.MustCompile(`\{\{\{\s*([^{}]+?)\s*\}\}\}|\{\{\s*([^{}]+?)\s*\}\}`)

// Match is one placeholder occurrence.
type Match struct {
	// Text is the complete placeholder including braces.
	Text string
	// Token is the inner `name` or `name:argument` text, trimmed.
	Token  string
	Ref    variables.Ref
	Start  int
	End    int
	Triple bool
}

// Find returns every placeholder in text in order of appearance.
func Find(text string) []Match {
	locs := tokenPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		m := Match{Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]}
		switch {
		case loc[2] >= 0:
			m.Token = text[loc[2]:loc[3]]
			m.Triple = true
		case loc[4] >= 0:
			m.Token = text[loc[4]:loc[5]]
		}
		m.Token = strings.TrimSpace(m.Token)
		m.Ref = variables.ParseRef(m.Token)
		if m.Ref.Name == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Tokens returns the distinct tokens of text in first-seen order.
func Tokens(text string) []string {
	matches := Find(text)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.Token]; ok {
			continue
		}
		seen[m.Token] = struct{}{}
		tokens = append(tokens, m.Token)
	}
	return tokens
}

// Replace rebuilds text, substituting every match for which value reports ok.
// Matches without a value are kept verbatim.
func Replace(text string, matches []Match, value func(Match) (string, bool)) string {
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.Start])
		if replacement, ok := value(m); ok {
			b.WriteString(replacement)
		} else {
			b.WriteString(m.Text)
		}
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Format renders a reference as a double-brace placeholder.
func Format(ref variables.Ref) string {
	return "{{" + ref.String() + "}}"
}
