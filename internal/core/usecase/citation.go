package usecase

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"juris-rag/internal/core/domain"
	"juris-rag/internal/core/signal"
)

const refusalMessage = "Não encontrei, nos documentos recuperados, fundamento suficiente para responder com segurança. Reformule a pergunta ou amplie os filtros de busca."

var (
	citationRE  = regexp.MustCompile(`(?i)\[[^\]]*doc(?:umento)?\.?\s*\d+[^\]]*\]`)
	docNumberRE = regexp.MustCompile(`(?i)doc(?:umento)?\.?\s*(\d+)`)

	quoteWithCitationRE = regexp.MustCompile(`(?i)(["\x{201c}][^"\x{201d}]{8,1000}["\x{201d}])\s*(\[[^\]]*doc(?:umento)?\.?\s*\d+[^\]]*\])`)

	themeSumulaRE = regexp.MustCompile(`(?i)\b(?:tema(?:\s+de\s+repercuss(?:ao|ão)\s+geral)?\s+\d+|s[úu]mula(?:\s+vinculante|(?:\s+stj)?)\s+\d+)\b`)

	nonAlnumRE   = regexp.MustCompile(`[^a-z0-9 ]+`)
	blankLinesRE = regexp.MustCompile(`\n{3,}`)

	// Quote formatting noise left by generation models.
	danglingQuoteOpenRE = regexp.MustCompile(`(?m)([^\n>])[ \t]+>[ \t]*(["\x{201c}])`)
	emptyQuoteLineRE    = regexp.MustCompile(`(?m)^>[ \t]*$\n?`)
	citationGlueRE      = regexp.MustCompile(`(\[[^\]]*\])(["\x{201c}])`)
)

// matchText reduces text to the form literal comparison happens in:
// diacritics stripped, lowercased, punctuation removed, whitespace collapsed.
func matchText(text string) string {
	norm := nonAlnumRE.ReplaceAllString(signal.NormalizeText(text), " ")
	return strings.Join(strings.Fields(norm), " ")
}

func stripOuterQuotes(quote string) string {
	return strings.Trim(strings.TrimSpace(quote), "\"“”")
}

// citationDocIndex resolves a citation bracket to a 0-based document index,
// or -1 when the number is absent or out of range.
func citationDocIndex(citation string, docCount int) int {
	m := docNumberRE.FindStringSubmatch(citation)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > docCount {
		return -1
	}
	return n - 1
}

// docCorpus is the searchable body a quote is verified against.
func docCorpus(c *domain.Candidate) string {
	return matchText(signal.CleanText(c.TextoBusca) + " " + signal.CleanText(c.TextoIntegral))
}

// verifyQuote reports whether the quoted text appears literally in the cited
// document. A quote found elsewhere in the corpus does not count: the citation
// stands or falls with the document it names.
func verifyQuote(quote string, citedIdx int, corpora []string) bool {
	needle := matchText(stripOuterQuotes(quote))
	if len(needle) < 12 {
		return false
	}
	return citedIdx >= 0 && citedIdx < len(corpora) && strings.Contains(corpora[citedIdx], needle)
}

// normalizeCitationLabels rewrites every citation bracket to the canonical
// [DOC. N] form and drops brackets pointing outside the document list.
func normalizeCitationLabels(answer string, docCount int) string {
	return citationRE.ReplaceAllStringFunc(answer, func(raw string) string {
		idx := citationDocIndex(raw, docCount)
		if idx < 0 {
			return ""
		}
		return fmt.Sprintf("[DOC. %d]", idx+1)
	})
}

// formatDirectQuotes verifies every quote-plus-citation pair. Verified quotes
// become blockquotes; unverified ones lose their quotation marks so the answer
// no longer claims a literal transcription.
func formatDirectQuotes(answer string, corpora []string) (string, int) {
	matches := quoteWithCitationRE.FindAllStringSubmatchIndex(answer, -1)
	if matches == nil {
		return answer, 0
	}
	var b strings.Builder
	last := 0
	verified := 0
	for _, m := range matches {
		b.WriteString(answer[last:m[0]])
		quote := answer[m[2]:m[3]]
		citation := answer[m[4]:m[5]]
		if verifyQuote(quote, citationDocIndex(citation, len(corpora)), corpora) {
			verified++
			fmt.Fprintf(&b, "\n> %s %s\n", quote, citation)
		} else {
			b.WriteString(stripOuterQuotes(quote) + " " + citation)
		}
		last = m[1]
	}
	b.WriteString(answer[last:])
	return b.String(), verified
}

// citedDocIndexes returns the distinct documents the answer cites, in order
// of first citation.
func citedDocIndexes(answer string, docCount int) []int {
	var out []int
	seen := make(map[int]struct{})
	for _, citation := range citationRE.FindAllString(answer, -1) {
		idx := citationDocIndex(citation, docCount)
		if idx < 0 {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}

// countUncitedParagraphs counts substantive paragraphs that carry no citation
// bracket at all. Headings, list markers and quote blocks are not counted.
func countUncitedParagraphs(answer string, minChars int) int {
	count := 0
	for _, paragraph := range paragraphSplitRE.Split(answer, -1) {
		p := strings.TrimSpace(paragraph)
		if len([]rune(p)) < minChars {
			continue
		}
		if strings.HasPrefix(p, ">") || strings.HasPrefix(p, "#") || strings.HasPrefix(p, "---") {
			continue
		}
		if !citationRE.MatchString(p) {
			count++
		}
	}
	return count
}

// fallbackExcerpts renders a literal-excerpt block from the top documents,
// used when the answer carries fewer than two verified quotes.
func fallbackExcerpts(query string, docs []domain.Candidate, cfg domain.Tuning) string {
	var b strings.Builder
	added := 0
	for i := range docs {
		if added >= 3 {
			break
		}
		passages := extractPassages(query, &docs[i], cfg)
		if len(passages) == 0 {
			continue
		}
		fmt.Fprintf(&b, "> \"%s\" [DOC. %d]\n\n", passages[0], i+1)
		added++
	}
	if added == 0 {
		return ""
	}
	return "\n\n---\n**Trechos literais dos precedentes:**\n\n" + strings.TrimSpace(b.String())
}

const ementaEnrichmentHeader = "**Ementas literais para temas/súmulas citados:**"

// ementaEnrichment appends literal ementas when the answer discusses a
// repercussão-geral theme or a súmula by number, so the reader sees the exact
// enunciado next to the analysis. At most three ementas are added, drawn from
// the cited documents (or the top of the list when nothing is cited), skipping
// any ementa already quoted in the answer.
func ementaEnrichment(answer string, docs []domain.Candidate, cfg domain.Tuning) string {
	if strings.Contains(answer, ementaEnrichmentHeader) {
		return ""
	}
	if !themeSumulaRE.MatchString(answer) {
		return ""
	}
	indexes := citedDocIndexes(answer, len(docs))
	if len(indexes) == 0 {
		for i := 0; i < len(docs) && i < 3; i++ {
			indexes = append(indexes, i)
		}
	}

	answerNorm := matchText(answer)
	seen := make(map[string]struct{}, 3)
	var b strings.Builder
	added := 0
	for _, idx := range indexes {
		if added >= 3 {
			break
		}
		literal := ementaLiteral(&docs[idx], cfg.ContextMaxPassageChars)
		if literal == "" {
			continue
		}
		guard := matchText(literal)
		if r := []rune(guard); len(r) > passagePrefixDedup {
			guard = string(r[:passagePrefixDedup])
		}
		if guard == "" || strings.Contains(answerNorm, guard) {
			continue
		}
		if _, dup := seen[guard]; dup {
			continue
		}
		seen[guard] = struct{}{}
		fmt.Fprintf(&b, "> \"%s\" [DOC. %d]\n\n", literal, idx+1)
		added++
	}
	if added == 0 {
		return ""
	}
	return "\n\n" + ementaEnrichmentHeader + "\n\n" + strings.TrimSpace(b.String())
}

func cleanupQuoteNoise(answer string) string {
	out := danglingQuoteOpenRE.ReplaceAllString(answer, "$1\n> $2")
	out = emptyQuoteLineRE.ReplaceAllString(out, "")
	out = citationGlueRE.ReplaceAllString(out, "$1\n\n$2")
	out = blankLinesRE.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// validateAnswer enforces the citation contract on a generated answer: quotes
// must be literal, citations must resolve, and an answer thin on verified
// quotes gets literal excerpts appended so the reader can always check the
// sources.
func validateAnswer(answer, query string, docs []domain.Candidate, cfg domain.Tuning) string {
	text := strings.TrimSpace(answer)
	if text == "" {
		return refusalMessage
	}
	if strings.Contains(matchText(text), "nao encontrei") {
		return refusalMessage
	}
	if len(docs) == 0 {
		return cleanupQuoteNoise(text)
	}

	corpora := make([]string, len(docs))
	for i := range docs {
		corpora[i] = docCorpus(&docs[i])
	}

	text = normalizeCitationLabels(text, len(docs))
	text, verified := formatDirectQuotes(text, corpora)

	if verified < 2 {
		text += fallbackExcerpts(query, docs, cfg)
	}
	text += ementaEnrichment(text, docs, cfg)

	if uncited := countUncitedParagraphs(text, cfg.ParagraphCitationMinChars); uncited > 0 {
		text += fmt.Sprintf("\n\n*Nota: %d parágrafo(s) desta resposta não indicam citação expressa; confira os documentos listados.*", uncited)
	}
	return cleanupQuoteNoise(text)
}
