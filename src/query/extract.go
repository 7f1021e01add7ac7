package query

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// Patterns that pin down the query inside a browser window, most specific first.
var searchPatterns = []struct {
	re       *regexp.Regexp
	urlValue bool
}{
	{regexp.MustCompile(`[?&]q=([^&\s]+)`), true},
	{regexp.MustCompile(`(?i)Google Search for "([^"]+)"`), false},
	{regexp.MustCompile(`(?im)^\s*Search:\s*(.+)$`), false},
	{regexp.MustCompile(`(?im)^(.+?)\s+-\s+Google Search`), false},
}

// Lines containing any of these are browser or search-page chrome.
var chromeWords = []string{"google", "search", "chrome", "images", "maps", "news", "videos", "shopping", "bookmarks"}

// Extract pulls the most plausible search query out of a raw OCR dump of the
// search-bar region. It returns "" when nothing plausible is found.
func Extract(raw string) string {
	for _, p := range searchPatterns {
		if m := p.re.FindStringSubmatch(raw); m != nil {
			q := m[1]
			if p.urlValue {
				if dec, err := url.QueryUnescape(q); err == nil {
					q = dec
				}
			}
			if q = Normalize(q); q != "" {
				return q
			}
		}
	}

	var candidates []string
	for _, line := range strings.Split(raw, "\n") {
		line = Normalize(line)
		if plausibleLine(line) {
			candidates = append(candidates, line)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	// The query box usually sits in the middle of the captured strip, below
	// the tab bar and above the result filters.
	return candidates[len(candidates)/2]
}

func plausibleLine(line string) bool {
	if len(line) <= 3 || len(line) >= 50 {
		return false
	}
	lower := strings.ToLower(line)
	if strings.HasPrefix(lower, "http") || strings.HasPrefix(lower, "www.") {
		return false
	}
	for _, w := range chromeWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}

// Normalize collapses whitespace and trims OCR debris (stray punctuation and
// symbols) from both ends of s.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ')'
	})
}

// hasAlphaToken reports whether s contains a token with at least two letters.
func hasAlphaToken(s string) bool {
	for _, tok := range strings.Fields(s) {
		letters := 0
		for _, r := range tok {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if letters >= 2 {
			return true
		}
	}
	return false
}
