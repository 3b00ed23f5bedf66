package signal

import (
	"fmt"
	"regexp"
	"strings"

	"juris-rag/internal/core/domain"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// SemanticExcerpt renders the compact candidate view sent to scoring models
// and used by the lexical fallback: a metadata header (with the inferred
// authority level and reason) followed by summary and excerpt text.
func SemanticExcerpt(c *domain.Candidate, maxChars int) string {
	processo := c.Processo
	if processo == "" {
		processo = c.DocID
	}
	if processo == "" {
		processo = "-"
	}
	tribunal := c.Tribunal
	if tribunal == "" {
		tribunal = "-"
	}
	dt := c.DataJulgamento
	if dt == "" {
		dt = "-"
	}

	authority := ClassifyAuthority(c)
	header := fmt.Sprintf(
		"Tribunal: %s\nTipo: %s\nProcesso: %s\nData: %s\n"+
			"Forca normativa inferida: Nivel %s (%s) | score=%.2f\n"+
			"Motivo de hierarquia: %s\n",
		tribunal, domain.TypeLabel(c.Tipo), processo, dt,
		authority.Level, domain.AuthorityLabel(authority.Level), authority.Score,
		authority.Reason,
	)

	text := header + "\nResumo:\n" + CleanText(c.TextoBusca) + "\n\nTrecho:\n" + CleanText(c.TextoIntegral)
	compact := strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
	runes := []rune(compact)
	if len(runes) <= maxChars {
		return compact
	}
	return strings.TrimRight(string(runes[:maxChars-3]), " ") + "..."
}

// FallbackScore is the lexical heuristic used whenever a scoring backend
// cannot produce a semantic score for a candidate.
func FallbackScore(query string, c *domain.Candidate) float64 {
	score := LexicalOverlap(query, SemanticExcerpt(c, 900))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
