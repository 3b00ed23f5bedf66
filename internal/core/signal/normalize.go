// Package signal holds the pure, stateless scoring signals computed over a
// query and a candidate document: text normalization, lexical overlap,
// recency decay, thesis/procedural keyword density, query-intent detection
// and authority-level classification.
package signal

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var tokenRE = regexp.MustCompile(`[a-z0-9]{3,}`)

var diacriticsStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText lowercases and strips diacritics so matching is
// accent-insensitive across the corpus' mixed encodings.
func NormalizeText(text string) string {
	lowered := strings.ToLower(text)
	stripped, _, err := transform.String(diacriticsStripper, lowered)
	if err != nil {
		return lowered
	}
	return stripped
}

// Tokens returns the normalized alphanumeric tokens (minimum length 3).
func Tokens(text string) []string {
	return tokenRE.FindAllString(NormalizeText(text), -1)
}

var (
	brTagRE     = regexp.MustCompile(`(?i)<br\s*/?>`)
	closeTagRE  = regexp.MustCompile(`(?i)</(p|div|li|tr|h\d|section|article)>`)
	liTagRE     = regexp.MustCompile(`(?i)<li[^>]*>`)
	anyTagRE    = regexp.MustCompile(`(?i)<[^>]+>`)
	blankRunsRE = regexp.MustCompile(`\n{3,}`)
)

// CleanText strips the HTML markup that leaks from scraped decisions and
// collapses line-ending noise.
func CleanText(raw string) string {
	text := html.UnescapeString(strings.ReplaceAll(strings.ReplaceAll(raw, "\r\n", "\n"), "\r", "\n"))
	text = brTagRE.ReplaceAllString(text, "\n")
	text = closeTagRE.ReplaceAllString(text, "\n")
	text = liTagRE.ReplaceAllString(text, "- ")
	text = anyTagRE.ReplaceAllString(text, "")
	text = blankRunsRE.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
