package usecase

import (
	"context"
	"fmt"
	"math"
	"testing"

	"juris-rag/internal/core/domain"
	"juris-rag/internal/core/ports"
)

func TestFuseListsSumsReciprocalRanks(t *testing.T) {
	a := domain.Candidate{DocID: "a"}
	b := domain.Candidate{DocID: "b"}
	c := domain.Candidate{DocID: "c"}

	fused := fuseLists([]domain.Candidate{a, b}, []domain.Candidate{c, a}, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(fused))
	}

	byID := map[string]domain.Candidate{}
	for _, cand := range fused {
		byID[cand.DocID] = cand
	}

	wantA := 1.0/61.0 + 1.0/62.0
	if got := byID["a"].Retrieval.RRFScore; math.Abs(got-wantA) > 1e-12 {
		t.Fatalf("expected rrf %v for doc a, got %v", wantA, got)
	}
	if byID["a"].Retrieval.HybridHits != 2 {
		t.Fatalf("expected 2 hits for doc a, got %d", byID["a"].Retrieval.HybridHits)
	}
	if byID["b"].Retrieval.HybridHits != 1 || byID["c"].Retrieval.HybridHits != 1 {
		t.Fatal("expected single-leg candidates to have 1 hit")
	}

	// Present in both lists beats any single-list candidate.
	if fused[0].DocID != "a" {
		t.Fatalf("expected doc a first, got %s", fused[0].DocID)
	}
}

func TestFuseListsIsDeterministic(t *testing.T) {
	vec := []domain.Candidate{{DocID: "x"}, {DocID: "y"}, {DocID: "z"}}
	fts := []domain.Candidate{{DocID: "z"}, {DocID: "w"}}

	first := fuseLists(vec, fts, 60)
	for i := 0; i < 10; i++ {
		again := fuseLists(vec, fts, 60)
		for j := range first {
			if first[j].DocID != again[j].DocID {
				t.Fatalf("fusion order changed between runs at %d: %s vs %s", j, first[j].DocID, again[j].DocID)
			}
		}
	}
}

func TestFuseListsTiesBreakOnVectorRank(t *testing.T) {
	// p: vector rank 1 only; q: fulltext rank 1 only. Same RRF, same hits.
	fused := fuseLists([]domain.Candidate{{DocID: "p"}}, []domain.Candidate{{DocID: "q"}}, 60)
	if fused[0].DocID != "p" {
		t.Fatalf("expected vector-ranked candidate first on tie, got %s", fused[0].DocID)
	}
}

func TestHybridRetrieveDegradesToVectorOnlyWhenFullTextFails(t *testing.T) {
	cands := testCandidates()
	store := &fakeStore{
		vecRows: map[string][]domain.Candidate{"jurisprudencia": cands},
		ftsErr:  fmt.Errorf("tsquery syntax error"),
	}
	engine := newTestEngine(store, nil, nil)

	got, warnings, err := engine.hybridRetrieve(context.Background(), "habeas corpus",
		[]float32{0.1}, domain.DefaultTuning(), domain.SearchRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(cands) {
		t.Fatalf("expected %d vector-only candidates, got %d", len(cands), len(got))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 degradation warning, got %v", warnings)
	}
	for _, c := range got {
		if c.Retrieval.FullTextRank != 0 {
			t.Fatalf("expected no fulltext rank, got %d", c.Retrieval.FullTextRank)
		}
	}
}

func TestHybridRetrieveSkipsTableWhenVectorFails(t *testing.T) {
	store := &fakeStore{vecErr: fmt.Errorf("connection refused")}
	engine := newTestEngine(store, nil, nil)

	got, warnings, err := engine.hybridRetrieve(context.Background(), "habeas corpus",
		[]float32{0.1}, domain.DefaultTuning(), domain.SearchRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
}

func TestHybridRetrieveKeepsEveryFusedCandidate(t *testing.T) {
	var many []domain.Candidate
	for i := 0; i < 120; i++ {
		many = append(many, domain.Candidate{DocID: fmt.Sprintf("doc-%d", i), Tribunal: "STF", Tipo: domain.TipoAcordao})
	}
	store := &fakeStore{vecRows: map[string][]domain.Candidate{"jurisprudencia": many}}
	engine := newTestEngine(store, nil, nil)

	// Retrieval hands the full fused list downstream; ranking makes the cut.
	got, _, err := engine.hybridRetrieve(context.Background(), "tema", []float32{0.1}, domain.DefaultTuning(), domain.SearchRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(many) {
		t.Fatalf("expected all %d fused candidates, got %d", len(many), len(got))
	}
}

func TestHybridRetrieveMergesTablesByFusedOrder(t *testing.T) {
	store := &fakeStore{
		vecRows: map[string][]domain.Candidate{
			"jurisprudencia": {{DocID: "p1"}, {DocID: "p2"}},
			"acervo_usuario": {{DocID: "u1"}},
		},
		ftsRows: map[string][]domain.Candidate{
			"jurisprudencia": {{DocID: "p1"}},
		},
	}
	engine := newTestEngine(store, nil, nil)

	got, _, err := engine.hybridRetrieve(context.Background(), "tema", []float32{0.1},
		domain.DefaultTuning(), domain.SearchRequest{Sources: []string{"primary", "user"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 merged candidates, got %d", len(got))
	}
	// p1 hit both legs; u1 and p2 are vector-only, so the better vector rank wins.
	wantOrder := []string{"p1", "u1", "p2"}
	for i, want := range wantOrder {
		if got[i].DocID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got[i].DocID)
		}
	}
}

func TestResolveTargetsIncludesUserTableOnlyWhenRequested(t *testing.T) {
	engine := newTestEngine(&fakeStore{}, nil, nil)

	primary := engine.resolveTargets(domain.SearchRequest{})
	if len(primary) != 1 || primary[0].table != "jurisprudencia" {
		t.Fatalf("expected primary-only targets, got %+v", primary)
	}

	both := engine.resolveTargets(domain.SearchRequest{Sources: []string{"primary", "user:abc"}})
	if len(both) != 2 {
		t.Fatalf("expected primary and user targets, got %+v", both)
	}
	if both[1].table != "acervo_usuario" || both[1].kind != domain.SourceUser {
		t.Fatalf("unexpected user target: %+v", both[1])
	}
}

var _ ports.SearchStore = (*fakeStore)(nil)
