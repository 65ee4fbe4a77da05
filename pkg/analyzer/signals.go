package analyzer

import (
	"regexp"
	"strings"
)

// maxExcerptLen bounds extracted excerpts.
const maxExcerptLen = 240

// signalRule is one entry of the deprecation-phrasing rule table. Rules
// are evaluated in order; the first match wins. Strong rules are
// trusted even when the surrounding text looks like code.
type signalRule struct {
	name    string
	pattern *regexp.Regexp
	strong  bool
}

// The rule table. Adding or removing a phrasing means adding or
// removing a row, not touching control flow.
var signalRules = []signalRule{
	{"no-longer-maintained", regexp.MustCompile(`(?i)\bno longer (?:being )?(?:actively )?maintained\b`), true},
	{"not-maintained", regexp.MustCompile(`(?i)\bthis (?:package|project|library|module|repo(?:sitory)?) is not (?:actively )?maintained\b`), true},
	{"unmaintained", regexp.MustCompile(`(?i)\bunmaintained\b`), true},
	{"end-of-life", regexp.MustCompile(`(?i)\bend[- ]of[- ]life\b|\breached EOL\b`), true},
	{"abandoned", regexp.MustCompile(`(?i)\b(?:this (?:package|project) (?:is|has been) abandoned|development has (?:stopped|ceased))\b`), true},
	{"version-deprecated", regexp.MustCompile(`(?i)\bversions? \d[\w.+-]* (?:is|are|has been|have been) deprecated\b`), true},
	{"package-deprecated", regexp.MustCompile(`(?i)\bthis (?:package|project|library|module) (?:is|has been) deprecated\b`), false},
	{"deprecated-in-favor", regexp.MustCompile(`(?i)\bdeprecated in favou?r of\b`), false},
	{"use-instead", regexp.MustCompile(`(?i)\bdeprecated[,.;]? (?:please )?use \S+ instead\b`), false},
}

// Patterns that mark an excerpt as code or API-usage text rather than a
// maintenance notice.
var codeMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(?://|/\*|\*|#)\s`),
	regexp.MustCompile(`=>|function\s*\(|\bconst\s+\w+\s*=|\bvar\s+\w+\s*=|\brequire\s*\(|\bimport\s+\w`),
	regexp.MustCompile(`(?i)\b(?:usage|example|examples)\s*:`),
	regexp.MustCompile("```"),
}

// ExtractMaintenanceSignal scans free-text documentation for
// deprecation phrasing. It returns the matched excerpt (trimmed and
// aligned to sentence boundaries where possible) and whether any rule
// fired. Matches inside code-looking excerpts are rejected unless the
// rule is strong.
func ExtractMaintenanceSignal(text string) (MaintenanceSignal, bool) {
	if strings.TrimSpace(text) == "" {
		return MaintenanceSignal{}, false
	}
	for _, rule := range signalRules {
		loc := rule.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		excerpt := excerptAround(text, loc[0], loc[1])
		if !rule.strong && looksLikeCode(excerpt) {
			continue
		}
		return MaintenanceSignal{Kind: "doc-heuristic:" + rule.name, Excerpt: excerpt}, true
	}
	return MaintenanceSignal{}, false
}

// looksLikeCode rejects excerpts resembling code or usage examples: a
// high ratio of brace/paren/semicolon characters, comment markers,
// assignment or function-literal syntax, or "usage example" phrasing.
func looksLikeCode(excerpt string) bool {
	if excerpt == "" {
		return false
	}
	syntax := 0
	for _, r := range excerpt {
		switch r {
		case '{', '}', '(', ')', ';', '=', '<', '>':
			syntax++
		}
	}
	if float64(syntax)/float64(len(excerpt)) > 0.06 {
		return true
	}
	for _, m := range codeMarkers {
		if m.MatchString(excerpt) {
			return true
		}
	}
	return false
}

// excerptAround cuts a bounded window around a match, preferring
// sentence boundaries.
func excerptAround(text string, start, end int) string {
	lo := start
	for lo > 0 && start-lo < maxExcerptLen/2 {
		c := text[lo-1]
		if c == '.' || c == '!' || c == '?' || c == '\n' {
			break
		}
		lo--
	}
	hi := end
	for hi < len(text) && hi-end < maxExcerptLen/2 {
		c := text[hi]
		hi++
		if c == '.' || c == '!' || c == '?' || c == '\n' {
			break
		}
	}
	excerpt := strings.TrimSpace(text[lo:hi])
	if len(excerpt) > maxExcerptLen {
		excerpt = strings.TrimSpace(excerpt[:maxExcerptLen])
	}
	return excerpt
}
