package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"juris-rag/internal/core/domain"
)

// searchTarget is one table queried during hybrid retrieval.
type searchTarget struct {
	table string
	kind  domain.SourceKind
	label string
}

// resolveTargets maps the requested sources to concrete tables. An empty
// source list means the primary corpus only; "user" adds the user-uploaded
// corpus when one is configured.
func (e *Engine) resolveTargets(req domain.SearchRequest) []searchTarget {
	targets := make([]searchTarget, 0, 2)
	wantPrimary := len(req.Sources) == 0
	wantUser := false
	for _, src := range req.Sources {
		switch {
		case src == string(domain.SourcePrimary):
			wantPrimary = true
		case src == string(domain.SourceUser) || strings.HasPrefix(src, string(domain.SourceUser)+":"):
			wantUser = true
		}
	}
	if wantPrimary {
		targets = append(targets, searchTarget{table: e.primaryTable, kind: domain.SourcePrimary, label: "Jurisprudencia STF/STJ"})
	}
	if wantUser && e.userTable != "" {
		targets = append(targets, searchTarget{table: e.userTable, kind: domain.SourceUser, label: "Acervo do usuario"})
	}
	if len(targets) == 0 {
		targets = append(targets, searchTarget{table: e.primaryTable, kind: domain.SourcePrimary, label: "Jurisprudencia STF/STJ"})
	}
	return targets
}

// hybridKey identifies a row across the vector and full-text lists. Rows
// without a doc_id fall back to a positional key and therefore never merge
// across lists; they simply accumulate as independent candidates.
func hybridKey(c *domain.Candidate, position int) string {
	if c.DocID != "" {
		return c.DocID
	}
	return fmt.Sprintf("%s|%s|%s|#%d", c.Tribunal, c.Tipo, c.Processo, position)
}

func rrfContribution(rank, k int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / float64(k+rank)
}

type fusedSlot struct {
	cand  domain.Candidate
	order int
}

// fuseLists merges one table's vector and full-text result lists with
// reciprocal rank fusion. Ranks are 1-based; a missing rank contributes
// nothing to the fused score.
func fuseLists(vecRows, ftsRows []domain.Candidate, rrfK int) []domain.Candidate {
	merged := make(map[string]*fusedSlot, len(vecRows)+len(ftsRows))
	order := 0

	for i := range vecRows {
		c := vecRows[i]
		c.Retrieval.VectorRank = i + 1
		key := hybridKey(&c, i+1)
		merged[key] = &fusedSlot{cand: c, order: order}
		order++
	}
	for i := range ftsRows {
		c := ftsRows[i]
		rank := i + 1
		key := hybridKey(&c, len(vecRows)+rank)
		if slot, ok := merged[key]; ok {
			slot.cand.Retrieval.FullTextRank = rank
			continue
		}
		c.Retrieval.FullTextRank = rank
		merged[key] = &fusedSlot{cand: c, order: order}
		order++
	}

	fused := make([]domain.Candidate, 0, len(merged))
	for _, slot := range merged {
		c := slot.cand
		c.Retrieval.RRFScore = rrfContribution(c.Retrieval.VectorRank, rrfK) + rrfContribution(c.Retrieval.FullTextRank, rrfK)
		hits := 0
		if c.Retrieval.VectorRank > 0 {
			hits++
		}
		if c.Retrieval.FullTextRank > 0 {
			hits++
		}
		c.Retrieval.HybridHits = hits
		fused = append(fused, c)
	}

	sort.SliceStable(fused, fusedLess(fused))
	return fused
}

// fusedLess orders fused candidates by RRF score, then number of lists hit,
// then the better vector rank, then the better full-text rank.
func fusedLess(cands []domain.Candidate) func(i, j int) bool {
	return func(i, j int) bool {
		a, b := &cands[i], &cands[j]
		if a.Retrieval.RRFScore != b.Retrieval.RRFScore {
			return a.Retrieval.RRFScore > b.Retrieval.RRFScore
		}
		if a.Retrieval.HybridHits != b.Retrieval.HybridHits {
			return a.Retrieval.HybridHits > b.Retrieval.HybridHits
		}
		if rankOrMax(a.Retrieval.VectorRank) != rankOrMax(b.Retrieval.VectorRank) {
			return rankOrMax(a.Retrieval.VectorRank) < rankOrMax(b.Retrieval.VectorRank)
		}
		return rankOrMax(a.Retrieval.FullTextRank) < rankOrMax(b.Retrieval.FullTextRank)
	}
}

func rankOrMax(rank int) int {
	if rank <= 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

// hybridRetrieve runs vector and full-text searches against every resolved
// table and fuses each pair of lists. A failed full-text search degrades the
// table to vector-only results; a failed vector search skips the table. The
// returned warnings describe every degradation that happened.
func (e *Engine) hybridRetrieve(ctx context.Context, query string, vector []float32, cfg domain.Tuning, req domain.SearchRequest) ([]domain.Candidate, []string, error) {
	targets := e.resolveTargets(req)
	all := make([]domain.Candidate, 0, cfg.TopKHybrid*len(targets))
	var warnings []string

	for _, target := range targets {
		vecRows, vecErr := e.store.VectorSearch(ctx, target.table, vector, cfg.TopKHybrid, req.Filter)
		if vecErr != nil {
			e.logger.Warn("vector search failed, skipping table",
				"table", target.table, "error", vecErr)
			warnings = append(warnings, fmt.Sprintf("busca vetorial indisponivel para %s", target.label))
			continue
		}
		ftsRows, ftsErr := e.store.FullTextSearch(ctx, target.table, query, cfg.TopKHybrid, req.Filter)
		if ftsErr != nil {
			e.logger.Warn("full-text search failed, degrading to vector-only",
				"table", target.table, "error", ftsErr)
			warnings = append(warnings, fmt.Sprintf("busca textual indisponivel para %s", target.label))
			ftsRows = nil
		}

		fused := fuseLists(vecRows, ftsRows, cfg.HybridRRFK)
		for i := range fused {
			fused[i].SourceKind = target.kind
			if fused[i].SourceLabel == "" {
				fused[i].SourceLabel = target.label
			}
		}
		all = append(all, fused...)
	}

	// Every table keeps its full fused list; ranking decides the cut later.
	if len(targets) > 1 {
		sort.SliceStable(all, fusedLess(all))
	}
	return all, warnings, nil
}
