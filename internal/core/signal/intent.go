package signal

import "strings"

var recencyIntentTerms = []string{
	"mais recente",
	"recente",
	"ultim",
	"atual",
	"novo",
	"ultima",
	"ultimas",
	"recentes",
}

var dominantIntentTerms = []string{
	"jurisprudencia dominante",
	"entendimento dominante",
	"jurisprudencia consolidada",
	"consolidado",
	"pacifico",
	"pacificada",
	"pacificado",
	"majoritario",
	"majoritaria",
	"precedente dominante",
}

var proceduralIntentTerms = []string{
	"admissibilidade",
	"pressuposto recursal",
	"sumula 279",
	"súmula 279",
	"ofensa reflexa",
	"recurso extraordinario",
	"recurso extraordinário",
	"agravo interno",
	"agravo regimental",
}

var bindingIntentTerms = []string{
	"vinculante",
	"obrigatorio",
	"obrigatoria",
	"precedente",
	"art 927",
	"cpc 927",
	"tema repetitivo",
	"repercussao geral",
	"controle concentrado",
	"sumula vinculante",
}

// Intent carries the query-side heuristics that shift composite weights.
// They gate or scale weights; they never add candidates.
type Intent struct {
	Recency    bool
	Dominant   bool
	Procedural bool
	Binding    bool
}

// DetectIntent matches the normalized query against the fixed term lists.
func DetectIntent(query string) Intent {
	q := NormalizeText(query)
	contains := func(terms []string) bool {
		for _, term := range terms {
			if strings.Contains(q, NormalizeText(term)) {
				return true
			}
		}
		return false
	}
	return Intent{
		Recency:    contains(recencyIntentTerms),
		Dominant:   contains(dominantIntentTerms),
		Procedural: contains(proceduralIntentTerms),
		Binding:    contains(bindingIntentTerms),
	}
}
