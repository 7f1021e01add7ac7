// Package label turns free-form search text into a dataset label.
package label

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// MaxSubjectLength bounds a believable subject. Longer text is treated as a
// recognition artifact.
const MaxSubjectLength = 64

// MaxSubjectBytes keeps "<subject>_YYYYMMDD_HHMMSS_NNN.json" under the
// 255-byte file name limit for multi-byte subjects.
const MaxSubjectBytes = 200

// ErrRejected is returned when no usable subject can be isolated.
var ErrRejected = errors.New("label rejected")

// Label is a parsed (subject, source) pair. Subject is never empty.
type Label struct {
	Subject string `json:"subject"`
	Source  string `json:"source,omitempty"`
}

func (l Label) String() string {
	if l.Source == "" {
		return l.Subject
	}
	return fmt.Sprintf("%s (%s)", l.Subject, l.Source)
}

// Ordered heuristics; first match wins.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(.+?)\s+from\s+(.+)$`),
	regexp.MustCompile(`^(.+?)\s+-\s+(.+)$`),
	regexp.MustCompile(`^(.+?)\s*\|\s*(.+)$`),
	regexp.MustCompile(`^(.+?)\s*\(([^()]+)\)\s*$`),
}

// Search-engine chrome that OCR picks up around the query box.
var genericTokens = map[string]bool{
	"google": true, "images": true, "image": true, "search": true,
	"bing": true, "duckduckgo": true, "yahoo": true, "chrome": true,
	"all": true, "videos": true, "news": true, "maps": true,
	"shopping": true, "www": true, "com": true, "http": true, "https": true,
}

var illegalPathChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// Parse splits text into a Label. It never panics; when no subject survives
// sanitizing and the sanity checks the error wraps ErrRejected.
func Parse(text string) (Label, error) {
	text = collapseSpaces(text)
	if text == "" {
		return Label{}, fmt.Errorf("%w: empty query", ErrRejected)
	}

	subject, source := text, ""
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			subject, source = m[1], m[2]
			break
		}
	}

	subject = Sanitize(subject)
	source = Sanitize(source)

	if subject == "" {
		return Label{}, fmt.Errorf("%w: empty subject in %q", ErrRejected, text)
	}
	if len([]rune(subject)) > MaxSubjectLength {
		return Label{}, fmt.Errorf("%w: subject too long (%d chars)", ErrRejected, len([]rune(subject)))
	}
	if len(subject) > MaxSubjectBytes {
		return Label{}, fmt.Errorf("%w: subject too long (%d bytes)", ErrRejected, len(subject))
	}
	if isGeneric(subject) {
		return Label{}, fmt.Errorf("%w: generic subject %q", ErrRejected, subject)
	}
	if isGeneric(source) {
		source = ""
	}

	return Label{Subject: subject, Source: source}, nil
}

// Sanitize strips characters that are illegal in a path segment, control
// characters, and the leading/trailing dots, dashes and spaces some
// filesystems refuse.
func Sanitize(s string) string {
	s = illegalPathChars.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = collapseSpaces(s)
	s = strings.Trim(s, ". -")
	return s
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isGeneric reports whether every token is search chrome or a bare number.
// The empty string is not generic.
func isGeneric(s string) bool {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return s != ""
	}
	for _, tok := range tokens {
		if genericTokens[tok] || isNumeric(tok) {
			continue
		}
		return false
	}
	return true
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
