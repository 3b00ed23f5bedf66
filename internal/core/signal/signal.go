package signal

import (
	"strings"

	"juris-rag/internal/core/domain"
)

// ThesisTerms mark text that states or fixes a legal thesis.
var ThesisTerms = []string{
	"tese",
	"tema",
	"repercussao geral",
	"repercussão geral",
	"fixa-se",
	"fixou-se",
	"fixou entendimento",
	"firmou entendimento",
	"assentou",
	"vinculante",
}

// ProceduralTerms mark procedural-admissibility noise.
var ProceduralTerms = []string{
	"sumula 279",
	"súmula 279",
	"ofensa reflexa",
	"reexame de fatos",
	"reexame do conjunto fatico",
	"inadmiss",
	"não conhecimento",
	"nao conhecimento",
	"legislação infraconstitucional",
	"legislacao infraconstitucional",
	"pressupostos recursais",
}

// legalStopTokens are query tokens too generic to discriminate between
// precedents; they are removed before lexical overlap scoring.
var legalStopTokens = map[string]struct{}{
	"art": {}, "arts": {}, "lei": {}, "leis": {}, "tema": {},
	"stf": {}, "stj": {}, "cpc": {}, "cpp": {}, "cf": {},
	"tribunal": {}, "jurisprudencia": {}, "processo": {},
	"sumula": {}, "sumulas": {}, "acordao": {}, "acordaos": {},
	"decisao": {}, "decisoes": {}, "recurso": {}, "direito": {},
}

// QueryTokens returns the stopword-filtered query tokens, falling back to the
// unfiltered set when removal would empty it.
func QueryTokens(query string) []string {
	all := Tokens(query)
	filtered := make([]string, 0, len(all))
	for _, token := range all {
		if _, stop := legalStopTokens[token]; !stop {
			filtered = append(filtered, token)
		}
	}
	if len(filtered) == 0 {
		return all
	}
	return filtered
}

// LexicalOverlap scores the fraction of distinct query tokens present in the
// document text. Pure and symmetric-free: only the query side is filtered.
func LexicalOverlap(query, docText string) float64 {
	queryTokens := QueryTokens(query)
	if len(queryTokens) == 0 {
		return 0
	}

	querySet := make(map[string]struct{}, len(queryTokens))
	for _, token := range queryTokens {
		querySet[token] = struct{}{}
	}
	docSet := make(map[string]struct{})
	for _, token := range Tokens(docText) {
		docSet[token] = struct{}{}
	}
	if len(docSet) == 0 {
		return 0
	}

	hits := 0
	for token := range querySet {
		if _, ok := docSet[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(querySet))
}

// DensitySaturationHits is the hit count at which keyword density saturates.
const DensitySaturationHits = 4.0

// KeywordDensity scores the fraction of terms matched in the normalized text,
// saturating at DensitySaturationHits and capped at 1.0.
func KeywordDensity(text string, terms []string) float64 {
	base := NormalizeText(text)
	if base == "" {
		return 0
	}
	hits := 0.0
	for _, term := range terms {
		t := NormalizeText(term)
		if t != "" && strings.Contains(base, t) {
			hits++
		}
	}
	density := hits / DensitySaturationHits
	if density > 1.0 {
		return 1.0
	}
	return density
}

// InferDocumentRole decides whether a candidate mostly states a thesis,
// mostly raises a procedural barrier, or merely applies settled law.
func InferDocumentRole(thesis, procedural float64) domain.DocumentRole {
	if thesis >= 0.35 && thesis >= procedural+0.08 {
		return domain.RoleTeseMaterial
	}
	if procedural >= 0.35 && procedural > thesis {
		return domain.RoleBarreiraProcessual
	}
	return domain.RoleAplicacao
}
