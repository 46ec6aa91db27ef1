package media

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxTitleLength = 100

var (
	nonWordPattern   = regexp.MustCompile(`[^\w\-\s]`)
	separatorPattern = regexp.MustCompile(`[-\s]+`)
)

// SanitizeTitle converts an arbitrary media title into a filesystem and
// object-key safe slug: Unicode compatibility decomposition with non-ASCII
// stripped, punctuation removed, runs of spaces and dashes collapsed to a
// single dash, lowercased, capped at 100 characters. An empty result becomes
// "untitled".
func SanitizeTitle(title string) string {
	decomposed := norm.NFKD.String(title)

	var ascii strings.Builder
	for _, r := range decomposed {
		if r < unicode.MaxASCII {
			ascii.WriteRune(r)
		}
	}

	s := nonWordPattern.ReplaceAllString(ascii.String(), "")
	s = separatorPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	s = strings.ToLower(s)

	if len(s) > maxTitleLength {
		s = s[:maxTitleLength]
	}
	if s == "" {
		return "untitled"
	}
	return s
}
