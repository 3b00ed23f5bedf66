package signal

import (
	"testing"
	"time"

	"juris-rag/internal/core/domain"
)

func TestNormalizeTextStripsDiacriticsAndCase(t *testing.T) {
	got := NormalizeText("Repercussão GERAL reconhecida")
	want := "repercussao geral reconhecida"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTokensDropShortTokens(t *testing.T) {
	tokens := Tokens("O réu foi condenado em 2020")
	for _, token := range tokens {
		if len(token) < 3 {
			t.Fatalf("short token %q leaked through", token)
		}
	}
}

func TestQueryTokensFallsBackWhenAllStopwords(t *testing.T) {
	tokens := QueryTokens("súmula STF lei")
	if len(tokens) == 0 {
		t.Fatal("expected fallback to unfiltered tokens, got none")
	}
}

func TestLexicalOverlapIgnoresGenericLegalTokens(t *testing.T) {
	doc := "prazo decadencial para impetracao de mandado de seguranca"
	withNoise := LexicalOverlap("súmula STF prazo mandado segurança", doc)
	clean := LexicalOverlap("prazo mandado segurança", doc)
	if withNoise != clean {
		t.Fatalf("stop tokens changed the score: %v vs %v", withNoise, clean)
	}
	if clean <= 0 {
		t.Fatalf("expected positive overlap, got %v", clean)
	}
}

func TestKeywordDensitySaturates(t *testing.T) {
	text := "tese tema repercussao geral fixou entendimento assentou vinculante fixa-se"
	if got := KeywordDensity(text, ThesisTerms); got != 1.0 {
		t.Fatalf("expected saturation at 1.0, got %v", got)
	}
	if got := KeywordDensity("texto sem termos relevantes", ThesisTerms); got != 0 {
		t.Fatalf("expected zero density, got %v", got)
	}
}

func TestInferDocumentRole(t *testing.T) {
	cases := []struct {
		thesis, procedural float64
		want               domain.DocumentRole
	}{
		{0.5, 0.1, domain.RoleTeseMaterial},
		{0.1, 0.5, domain.RoleBarreiraProcessual},
		{0.1, 0.1, domain.RoleAplicacao},
		{0.36, 0.35, domain.RoleAplicacao},
	}
	for _, tc := range cases {
		if got := InferDocumentRole(tc.thesis, tc.procedural); got != tc.want {
			t.Fatalf("thesis=%v procedural=%v: expected %s, got %s", tc.thesis, tc.procedural, tc.want, got)
		}
	}
}

func TestDetectIntent(t *testing.T) {
	intent := DetectIntent("qual a jurisprudência mais recente e vinculante sobre o tema?")
	if !intent.Recency {
		t.Fatal("expected recency intent")
	}
	if !intent.Binding {
		t.Fatal("expected binding intent")
	}
	if intent.Procedural {
		t.Fatal("did not expect procedural intent")
	}

	neutral := DetectIntent("responsabilidade civil do estado")
	if neutral.Recency || neutral.Dominant || neutral.Procedural || neutral.Binding {
		t.Fatalf("expected no intents, got %+v", neutral)
	}
}

func TestRecencyDecaysMonotonically(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	newer, _, knownNewer := Recency("2025-06-01", now, 0.05, 7.0)
	older, _, knownOlder := Recency("2015-06-01", now, 0.05, 7.0)
	if !knownNewer || !knownOlder {
		t.Fatal("expected both dates to parse")
	}
	if newer <= older {
		t.Fatalf("expected newer > older, got %v <= %v", newer, older)
	}
	if newer > 1 || older < 0 {
		t.Fatalf("scores out of range: %v, %v", newer, older)
	}
}

func TestRecencyUnknownDate(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	score, _, known := Recency("", now, 0.05, 7.0)
	if known {
		t.Fatal("expected unknown date")
	}
	if score != 0.05 {
		t.Fatalf("expected unknown score 0.05, got %v", score)
	}
}

func TestRecencyAcceptsBrazilianDateFormat(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, age, known := Recency("01/06/2024", now, 0.05, 7.0)
	if !known {
		t.Fatal("expected dd/mm/yyyy to parse")
	}
	if age < 1.9 || age > 2.1 {
		t.Fatalf("expected age around 2 years, got %v", age)
	}
}

func TestClassifyAuthorityCascade(t *testing.T) {
	cases := []struct {
		name      string
		candidate domain.Candidate
		wantLevel domain.AuthorityLevel
	}{
		{
			name:      "sumula vinculante",
			candidate: domain.Candidate{Tipo: domain.TipoSumulaVinculante, Tribunal: "STF"},
			wantLevel: domain.AuthorityA,
		},
		{
			name: "controle concentrado",
			candidate: domain.Candidate{
				Tipo: domain.TipoAcordao, Tribunal: "STF",
				Processo: "ADI 5529",
			},
			wantLevel: domain.AuthorityA,
		},
		{
			name:      "tema repetitivo",
			candidate: domain.Candidate{Tipo: domain.TipoTemaRepetitivo, Tribunal: "STJ"},
			wantLevel: domain.AuthorityB,
		},
		{
			name:      "sumula simples",
			candidate: domain.Candidate{Tipo: domain.TipoSumula, Tribunal: "STF"},
			wantLevel: domain.AuthorityC,
		},
		{
			name:      "monocratica",
			candidate: domain.Candidate{Tipo: domain.TipoMonocratica, Tribunal: "STF"},
			wantLevel: domain.AuthorityD,
		},
		{
			name:      "informativo",
			candidate: domain.Candidate{Tipo: domain.TipoInformativo, Tribunal: "STF"},
			wantLevel: domain.AuthorityE,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyAuthority(&tc.candidate)
			if got.Level != tc.wantLevel {
				t.Fatalf("expected level %s, got %s (%s)", tc.wantLevel, got.Level, got.Reason)
			}
			if got.Score < 0 || got.Score > 1 {
				t.Fatalf("score out of range: %v", got.Score)
			}
			if got.Reason == "" {
				t.Fatal("expected a classification reason")
			}
		})
	}
}

func TestClassifyAuthorityIsIdempotent(t *testing.T) {
	c := domain.Candidate{Tipo: domain.TipoAcordao, Tribunal: "STF", TextoBusca: "repercussão geral reconhecida, tema 1234"}
	first := ClassifyAuthority(&c)
	second := ClassifyAuthority(&c)
	if first != second {
		t.Fatalf("classification changed between calls: %+v vs %+v", first, second)
	}
}

func TestSemanticExcerptIsBounded(t *testing.T) {
	long := make([]byte, 0, 5000)
	for i := 0; i < 500; i++ {
		long = append(long, []byte("trecho aaaa ")...)
	}
	c := domain.Candidate{
		Tipo: domain.TipoAcordao, Tribunal: "STF", Processo: "RE 123",
		TextoBusca: "resumo", TextoIntegral: string(long),
	}
	excerpt := SemanticExcerpt(&c, 900)
	if len([]rune(excerpt)) > 900 {
		t.Fatalf("excerpt exceeds limit: %d runes", len([]rune(excerpt)))
	}
	if excerpt == "" {
		t.Fatal("expected non-empty excerpt")
	}
}
