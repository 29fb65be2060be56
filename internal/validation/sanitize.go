package validation

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// NormalizeText prepares free-form text such as doubt descriptions and
// answers for storage. Markup and entities are kept verbatim; clients escape
// on render. NUL bytes are dropped and invalid UTF-8 replaced.
func NormalizeText(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(strings.ToValidUTF8(input, "\uFFFD"))
}

// SanitizePlain strips every tag, for single-line fields such as names and
// titles. Entities escaped by the policy are decoded again so the stored
// value stays plain text.
func SanitizePlain(input string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(input)))
}
