package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"juris-rag/internal/core/domain"
	"juris-rag/internal/core/signal"
)

const (
	minPassageChars    = 80
	passagePrefixDedup = 140
)

var (
	paragraphSplitRE = regexp.MustCompile(`\n{2,}`)
	sentenceEndRE    = regexp.MustCompile(`[.!?;]\s+`)

	structuralLeadRE = regexp.MustCompile(`(?i)^\s*(ementa|ac[oó]rd[aã]o|relat[oó]rio|voto|decis[aã]o)\s*[:.\-]?\s*`)
	temaNumberRE     = regexp.MustCompile(`(?i)\btema\s+\d+\b`)

	ementaLiteralRE = regexp.MustCompile(`(?is)\bementa\s*[:.]?\s*(.+?)(?:\n\s*\n\s*(?:ac[oó]rd[aã]o|acordam|relat[oó]rio|voto|decis[aã]o)\b|$)`)
)

// splitSentences splits on terminal punctuation followed by whitespace,
// keeping the punctuation with the preceding sentence.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEndRE.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func truncateRunes(value string, maxChars int) string {
	text := strings.TrimSpace(value)
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return strings.TrimRight(string(runes[:maxChars-3]), " ") + "..."
}

// passageUnits breaks a document body into scoreable units: paragraphs when
// the text has enough of them, sentences otherwise, the whole text as a last
// resort. Units below minPassageChars are noise and are dropped.
func passageUnits(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	var units []string
	for _, p := range paragraphSplitRE.Split(trimmed, -1) {
		if p = strings.TrimSpace(p); len([]rune(p)) >= minPassageChars {
			units = append(units, p)
		}
	}
	if len(units) >= 3 {
		return units
	}
	units = units[:0]
	for _, s := range splitSentences(trimmed) {
		if len([]rune(s)) >= minPassageChars {
			units = append(units, s)
		}
	}
	if len(units) > 0 {
		return units
	}
	return []string{trimmed}
}

type scoredPassage struct {
	text  string
	score float64
}

// scorePassage weights distinct query-token hits against thesis and
// procedural density: thesis-bearing passages are worth more, procedural
// boilerplate less, but a procedural passage with query hits still surfaces.
func scorePassage(queryTokens map[string]struct{}, unit string) float64 {
	norm := signal.NormalizeText(unit)
	hits := 0.0
	for token := range queryTokens {
		if strings.Contains(norm, token) {
			hits++
		}
	}
	thesis := signal.KeywordDensity(unit, signal.ThesisTerms)
	procedural := signal.KeywordDensity(unit, signal.ProceduralTerms)
	return 1.2*hits + 1.8*thesis + 0.8*procedural
}

// extractPassages selects the passages quoted in the generation context: the
// summary first, then the best-scoring body passages, deduplicated by
// normalized prefix and truncated to the per-passage character limit.
func extractPassages(query string, c *domain.Candidate, cfg domain.Tuning) []string {
	queryTokens := make(map[string]struct{})
	for _, token := range signal.QueryTokens(query) {
		queryTokens[token] = struct{}{}
	}

	var ordered []scoredPassage
	if busca := signal.CleanText(c.TextoBusca); strings.TrimSpace(busca) != "" {
		ordered = append(ordered, scoredPassage{text: busca, score: 0})
	}

	body := signal.CleanText(c.TextoIntegral)
	bodyRunes := []rune(body)
	if len(bodyRunes) > cfg.ContextMaxDocChars {
		body = string(bodyRunes[:cfg.ContextMaxDocChars])
	}

	var scored []scoredPassage
	for _, unit := range passageUnits(body) {
		if s := scorePassage(queryTokens, unit); s > 0 {
			scored = append(scored, scoredPassage{text: unit, score: s})
		}
	}
	if len(scored) == 0 && strings.TrimSpace(body) != "" {
		// Nothing matched the query; lead with the opening of the document.
		for _, unit := range passageUnits(body) {
			scored = append(scored, scoredPassage{text: unit, score: 0.01})
			if len(scored) >= cfg.ContextMaxPassagesPerDoc {
				break
			}
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return len(scored[i].text) > len(scored[j].text)
	})
	ordered = append(ordered, scored...)

	seen := make(map[string]struct{}, cfg.ContextMaxPassagesPerDoc)
	passages := make([]string, 0, cfg.ContextMaxPassagesPerDoc)
	for _, p := range ordered {
		if len(passages) >= cfg.ContextMaxPassagesPerDoc {
			break
		}
		text := truncateRunes(p.text, cfg.ContextMaxPassageChars)
		if text == "" {
			continue
		}
		prefix := signal.NormalizeText(text)
		if r := []rune(prefix); len(r) > passagePrefixDedup {
			prefix = string(r[:passagePrefixDedup])
		}
		if _, dup := seen[prefix]; dup {
			continue
		}
		seen[prefix] = struct{}{}
		passages = append(passages, text)
	}
	return passages
}

// structuralTipos are types whose summary text is itself the normative
// statement.
var structuralTipos = map[string]struct{}{
	domain.TipoSumula:           {},
	domain.TipoSumulaSTJ:        {},
	domain.TipoSumulaVinculante: {},
	domain.TipoTemaRepetitivo:   {},
}

// hasThesisMarker reports whether an acordao carries a fixed thesis (general
// repercussion flag or an explicit numbered Tema).
func hasThesisMarker(c *domain.Candidate) bool {
	if c.MetaTrueish("is_repercussao_geral") || c.MetaTrueish("repercussao_geral") {
		return true
	}
	corpus := signal.NormalizeText(c.TextoBusca + " " + c.TextoIntegral)
	if strings.Contains(corpus, "repercussao geral") {
		return true
	}
	return temaNumberRE.MatchString(corpus)
}

// normativeStatement extracts the binding statement a document fixes, when it
// has one: sumulas and repetitive themes always do, acordaos only when they
// carry a thesis marker.
func normativeStatement(c *domain.Candidate, maxChars int) string {
	_, structural := structuralTipos[c.Tipo]
	if !structural {
		if c.Tipo != domain.TipoAcordao && c.Tipo != domain.TipoAcordaoSV {
			return ""
		}
		if !hasThesisMarker(c) {
			return ""
		}
	}

	for _, key := range []string{"tese", "tese_tema", "tema_tese", "enunciado"} {
		if v := strings.TrimSpace(c.MetaString(key)); len([]rune(v)) >= 26 {
			return truncateRunes(v, maxChars)
		}
	}

	text := signal.CleanText(c.TextoBusca)
	if text == "" {
		text = signal.CleanText(c.TextoIntegral)
	}
	if text == "" {
		return ""
	}
	if structural {
		line := structuralLeadRE.ReplaceAllString(text, "")
		return truncateRunes(line, maxChars)
	}
	for _, sentence := range splitSentences(text) {
		norm := signal.NormalizeText(sentence)
		if strings.Contains(norm, "tese") || strings.Contains(norm, "fixou") || strings.Contains(norm, "firmou") {
			return truncateRunes(sentence, maxChars)
		}
	}
	return ""
}

// ementaLiteral extracts the literal opening of the ementa section when the
// full text carries one.
func ementaLiteral(c *domain.Candidate, maxChars int) string {
	body := signal.CleanText(c.TextoIntegral)
	if body == "" {
		return ""
	}
	m := ementaLiteralRE.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	literal := strings.TrimSpace(m[1])
	if len([]rune(literal)) < 40 {
		return ""
	}
	return truncateRunes(literal, maxChars)
}

// buildContext renders the numbered document blocks passed to generation.
// Block numbering is 1-based and is the citation namespace of the answer.
func buildContext(query string, docs []domain.Candidate, cfg domain.Tuning) string {
	var b strings.Builder
	for i := range docs {
		c := &docs[i]
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[DOC. %d] %s | %s", i+1, c.Tribunal, domain.TypeLabel(c.Tipo))
		if c.Processo != "" {
			fmt.Fprintf(&b, " | %s", c.Processo)
		}
		if c.DataJulgamento != "" {
			fmt.Fprintf(&b, " | %s", c.DataJulgamento)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "Forca normativa: Nivel %s (%s) - %s\n",
			c.Ranking.AuthorityLevel,
			domain.AuthorityLabel(c.Ranking.AuthorityLevel),
			c.Ranking.AuthorityReason)
		fmt.Fprintf(&b, "Papel: %s\n", domain.RoleLabel(c.Ranking.Role))
		if c.Relator != "" {
			fmt.Fprintf(&b, "Relator: %s\n", c.Relator)
		}
		if c.SourceKind == domain.SourceUser {
			fmt.Fprintf(&b, "Fonte: %s\n", c.SourceLabel)
		}
		if statement := normativeStatement(c, cfg.ContextMaxPassageChars); statement != "" {
			fmt.Fprintf(&b, "Tese/enunciado: \"%s\"\n", statement)
		}
		for _, passage := range extractPassages(query, c, cfg) {
			fmt.Fprintf(&b, "Trecho: \"%s\"\n", passage)
		}
	}
	return b.String()
}
