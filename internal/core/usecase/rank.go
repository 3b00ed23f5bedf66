package usecase

import (
	"math"
	"sort"
	"strings"
	"time"

	"juris-rag/internal/core/domain"
	"juris-rag/internal/core/signal"
)

// minMaxScale normalizes values into [0,1]. A degenerate distribution (all
// values equal) maps everything to 0.5 so later weighting stays neutral.
func minMaxScale(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]float64, len(values))
	if hi-lo < 1e-12 {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	span := hi - lo
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

// rankingWeights are the intent-adjusted weights for one query execution.
type rankingWeights struct {
	recency    float64
	authority  float64
	procedural float64
	binding    bool
}

func adjustWeights(cfg domain.Tuning, intent signal.Intent) rankingWeights {
	w := rankingWeights{
		recency:    cfg.RecencyWeight,
		authority:  cfg.AuthorityBonusWeight,
		procedural: cfg.ProceduralPenaltyWeight,
		binding:    intent.Binding,
	}
	if intent.Recency {
		w.recency *= cfg.RecencyIntentMult
	} else if intent.Dominant {
		w.recency *= cfg.RecencyDominantMult
	}
	if intent.Binding {
		w.authority *= cfg.AuthorityIntentMult
	}
	if intent.Procedural {
		w.procedural *= cfg.ProceduralIntentMult
	}
	return w
}

func levelBoost(cfg domain.Tuning, level domain.AuthorityLevel) float64 {
	switch level {
	case domain.AuthorityA:
		return cfg.AuthorityLevelABoost
	case domain.AuthorityB:
		return cfg.AuthorityLevelBBoost
	case domain.AuthorityC:
		return cfg.AuthorityLevelCBoost
	case domain.AuthorityD:
		return cfg.AuthorityLevelDBoost
	default:
		return cfg.AuthorityLevelEBoost
	}
}

func isMonocratic(tipo string) bool {
	return tipo == domain.TipoMonocratica || tipo == domain.TipoMonocraticaSV
}

// isCollegialBinding matches the decision types that carry binding collegial
// force: súmulas, repetitive-theme theses and full-bench acórdãos.
func isCollegialBinding(tipo string) bool {
	switch tipo {
	case domain.TipoAcordao, domain.TipoAcordaoSV,
		domain.TipoSumula, domain.TipoSumulaSTJ, domain.TipoSumulaVinculante,
		domain.TipoTemaRepetitivo:
		return true
	}
	return false
}

// candidateText is the body all lexical signals score against: process number,
// cleaned summary, and a bounded slice of the full text.
func candidateText(c *domain.Candidate) string {
	integral := []rune(signal.CleanText(c.TextoIntegral))
	if len(integral) > 2500 {
		integral = integral[:2500]
	}
	return c.Processo + "\n" + signal.CleanText(c.TextoBusca) + "\n" + string(integral)
}

// compositeRank computes every per-candidate signal, combines them with the
// intent-adjusted weights, sorts by the deterministic tie-break chain and
// deduplicates down to topK.
func (e *Engine) compositeRank(query string, cands []domain.Candidate, raw []float64, backend string, cfg domain.Tuning, req domain.SearchRequest, now time.Time) []domain.Candidate {
	if len(cands) == 0 {
		return nil
	}
	intent := signal.DetectIntent(query)
	weights := adjustWeights(cfg, intent)

	semNorm := minMaxScale(raw)

	for i := range cands {
		c := &cands[i]
		text := candidateText(c)

		c.Ranking.SemanticRaw = raw[i]
		c.Ranking.SemanticNorm = semNorm[i]
		c.Ranking.SemanticBackend = backend
		c.Ranking.Lexical = signal.LexicalOverlap(query, text)

		recency, ageYears, ageKnown := signal.Recency(c.DataJulgamento, now, cfg.RecencyUnknownScore, cfg.RecencyHalfLifeYears)
		c.Ranking.Recency = recency
		c.Ranking.AgeYears = ageYears
		c.Ranking.AgeKnown = ageKnown

		c.Ranking.Thesis = signal.KeywordDensity(text, signal.ThesisTerms)
		c.Ranking.Procedural = signal.KeywordDensity(text, signal.ProceduralTerms)
		c.Ranking.Role = signal.InferDocumentRole(c.Ranking.Thesis, c.Ranking.Procedural)

		authority := signal.ClassifyAuthority(c)
		c.Ranking.AuthorityScore = authority.Score
		c.Ranking.AuthorityLevel = authority.Level
		c.Ranking.AuthorityReason = authority.Reason

		// Recency only counts when the caller wants it. Explicit recency
		// intent pays the full weighted value; otherwise the candidate must
		// clear the semantic gate and the contribution is capped.
		recencyContrib := 0.0
		if req.PreferRecent {
			if intent.Recency {
				recencyContrib = weights.recency * recency
			} else if c.Ranking.SemanticNorm >= cfg.RecencyMinSemanticGate {
				recencyContrib = math.Min(weights.recency*recency, cfg.RecencyMaxContribution)
			}
		}
		c.Ranking.RecencyContrib = recencyContrib

		priority := 0.0
		if req.PreferUserSources && c.SourceKind == domain.SourceUser {
			priority = cfg.UserSourcePriorityBoost
		}
		c.Ranking.SourcePriority = priority

		final := cfg.SemanticWeight*c.Ranking.SemanticNorm +
			cfg.LexicalWeight*c.Ranking.Lexical +
			recencyContrib +
			cfg.RRFWeight*c.Retrieval.RRFScore +
			cfg.ThesisBonusWeight*c.Ranking.Thesis -
			weights.procedural*c.Ranking.Procedural +
			weights.authority*c.Ranking.AuthorityScore +
			levelBoost(cfg, authority.Level) +
			priority

		if weights.binding {
			if isCollegialBinding(c.Tipo) {
				final += cfg.CollegialBindingBonus
			}
			if isMonocratic(c.Tipo) {
				final -= cfg.MonocraticBindingPenalty
			}
		}

		c.Ranking.Final = final
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := &cands[i].Ranking, &cands[j].Ranking
		if a.Final != b.Final {
			return a.Final > b.Final
		}
		if a.AuthorityScore != b.AuthorityScore {
			return a.AuthorityScore > b.AuthorityScore
		}
		if a.Thesis != b.Thesis {
			return a.Thesis > b.Thesis
		}
		if a.SemanticNorm != b.SemanticNorm {
			return a.SemanticNorm > b.SemanticNorm
		}
		return a.Lexical > b.Lexical
	})

	if cfg.RerankDedupProcess {
		return dedupeRanked(cands, cfg.TopKRerank)
	}
	if len(cands) > cfg.TopKRerank {
		cands = cands[:cfg.TopKRerank]
	}
	return cands
}

// dedupeKey collapses repeated decisions of the same process. Rows without a
// process number fall back to the doc id so distinct documents never collapse.
func dedupeKey(c *domain.Candidate) string {
	processo := strings.TrimSpace(strings.ToLower(c.Processo))
	if processo != "" {
		return strings.ToLower(c.Tribunal) + "|" + strings.ToLower(c.Tipo) + "|" + processo
	}
	if c.DocID != "" {
		return "doc|" + c.DocID
	}
	return ""
}

// dedupeRanked keeps the best-ranked representative per process and backfills
// with remaining duplicates when fewer than topK distinct processes exist, so
// the cut never shrinks below min(topK, len(ranked)).
func dedupeRanked(ranked []domain.Candidate, topK int) []domain.Candidate {
	if topK <= 0 || len(ranked) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, topK)
	unique := make([]domain.Candidate, 0, topK)
	var leftovers []domain.Candidate
	for _, c := range ranked {
		key := dedupeKey(&c)
		if key == "" {
			unique = append(unique, c)
			continue
		}
		if _, dup := seen[key]; dup {
			leftovers = append(leftovers, c)
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}

	if len(unique) > topK {
		return unique[:topK]
	}
	for _, c := range leftovers {
		if len(unique) >= topK {
			break
		}
		unique = append(unique, c)
	}
	return unique
}
