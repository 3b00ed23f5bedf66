package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"juris-rag/internal/core/domain"
	"juris-rag/internal/core/ports"
	"juris-rag/internal/core/signal"
)

const (
	remoteBackend = "gemini"

	batchSize      = 8
	scoringPasses  = 2
	maxWorkers     = 15
	refineTopN     = 24
	refineMinUnits = 4
	refineBlend    = 0.70
	spreadDiscount = 0.08

	scoringExcerptChars = 1600
	refineExcerptChars  = 1200

	weightRelevance  = 0.50
	weightThesis     = 0.25
	weightProcedural = 0.15
	weightHierarchy  = 0.20
)

const scoringSystemPrompt = `Você avalia precedentes judiciais brasileiros quanto à utilidade para responder uma consulta jurídica.

Para cada documento numerado, atribua uma nota final "score" entre 0.0 e 1.0 e quatro notas parciais entre 0.0 e 1.0:
- "relevancia": quanto o documento responde diretamente à consulta;
- "tese": quanto o documento FIXA uma tese de mérito (não apenas aplica);
- "processual": quanto o documento trata só de barreira processual/admissibilidade;
- "hierarquia": força normativa do precedente (vinculante=1.0, editorial=0.0).

Responda APENAS com um array JSON, um objeto por documento, no formato:
[{"id": 1, "score": 0.8, "relevancia": 0.8, "tese": 0.6, "processual": 0.0, "hierarquia": 0.9}]`

const refineSystemPrompt = `Você recalibra notas de relevância de precedentes judiciais brasileiros para uma consulta jurídica.

Cada documento numerado traz a nota base (BaseScore) da triagem anterior e um trecho do precedente. Reavalie cada documento frente à consulta e devolva a nota final entre 0.0 e 1.0.

Responda APENAS com um array JSON no formato:
[{"id": 1, "score": 0.8}]`

var jsonArrayRE = regexp.MustCompile(`(?s)\[.*\]`)

// scoreUnit is one candidate as seen by the remote model, with the identity
// key its samples aggregate under.
type scoreUnit struct {
	index    int
	identity string
	excerpt  string
}

type batchScores struct {
	Score      *float64 `json:"score"`
	Relevancia float64  `json:"relevancia"`
	Tese       float64  `json:"tese"`
	Processual float64  `json:"processual"`
	Hierarquia float64  `json:"hierarquia"`
	ID         int      `json:"id"`
}

// RemoteScorer scores candidates in parallel batches against a remote
// generation model. Every batch answer is reconstructed into one composite
// score per candidate; multiple rotated passes are aggregated per identity
// and the best candidates get one refinement pass.
type RemoteScorer struct {
	generator ports.AnswerGenerator
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func NewRemoteScorer(generator ports.AnswerGenerator, requestsPerMinute int, logger *slog.Logger) *RemoteScorer {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 120
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteScorer{
		generator: generator,
		limiter:   rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
		logger:    logger,
	}
}

func unitIdentity(c *domain.Candidate, index int) string {
	if c.DocID != "" {
		return c.DocID
	}
	return fmt.Sprintf("%s|%s|%s|#%d", c.Tribunal, c.Tipo, c.Processo, index)
}

// compositeScore prefers the model's own final score; when it is missing the
// four partial notes are recombined into one.
func compositeScore(s batchScores) float64 {
	if s.Score != nil {
		return clamp01(*s.Score)
	}
	v := weightRelevance*clamp01(s.Relevancia) +
		weightThesis*clamp01(s.Tese) -
		weightProcedural*clamp01(s.Processual) +
		weightHierarchy*clamp01(s.Hierarquia)
	return clamp01(v)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func (r *RemoteScorer) Score(ctx context.Context, req ports.ScoreRequest) (ports.ScoreResult, error) {
	if len(req.Candidates) == 0 {
		return ports.ScoreResult{Backend: remoteBackend}, nil
	}

	units := make([]scoreUnit, len(req.Candidates))
	for i := range req.Candidates {
		c := &req.Candidates[i]
		units[i] = scoreUnit{
			index:    i,
			identity: unitIdentity(c, i),
			excerpt:  signal.SemanticExcerpt(c, scoringExcerptChars),
		}
	}

	samples := make(map[string][]float64, len(units))
	var mu sync.Mutex

	record := func(identity string, score float64) {
		mu.Lock()
		samples[identity] = append(samples[identity], score)
		mu.Unlock()
	}

	for pass := 0; pass < scoringPasses; pass++ {
		// Rotating the order changes batch composition between passes, so a
		// candidate is never judged twice against the exact same neighbors.
		ordered := rotateUnits(units, pass*batchSize/2)
		if err := r.runPass(ctx, req, ordered, record); err != nil {
			return ports.ScoreResult{}, err
		}
	}

	base := make([]float64, len(req.Candidates))
	for i := range units {
		values := samples[units[i].identity]
		if len(values) == 0 {
			base[i] = signal.FallbackScore(req.Query, &req.Candidates[i])
			continue
		}
		mean, stddev := meanStddev(values)
		base[i] = clamp01(mean - spreadDiscount*stddev)
	}

	scores := r.refine(ctx, req, base)
	return ports.ScoreResult{Scores: scores, Backend: remoteBackend}, nil
}

func rotateUnits(units []scoreUnit, shift int) []scoreUnit {
	n := len(units)
	if n == 0 || shift%n == 0 {
		out := make([]scoreUnit, n)
		copy(out, units)
		return out
	}
	shift = shift % n
	out := make([]scoreUnit, 0, n)
	out = append(out, units[shift:]...)
	out = append(out, units[:shift]...)
	return out
}

// runPass scores every batch of one ordering concurrently. A failed batch
// only loses its own samples; cancellation is the only fatal error.
func (r *RemoteScorer) runPass(ctx context.Context, req ports.ScoreRequest, ordered []scoreUnit, record func(string, float64)) error {
	group, gctx := errgroup.WithContext(ctx)
	workers := maxWorkers
	if n := (len(ordered) + batchSize - 1) / batchSize; n < workers {
		workers = n
	}
	group.SetLimit(workers)

	for start := 0; start < len(ordered); start += batchSize {
		end := start + batchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		batch := ordered[start:end]
		group.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				return err
			}
			scored, err := r.scoreBatch(gctx, req, batch)
			if err != nil {
				r.logger.Warn("rerank batch failed, candidates keep fallback scores",
					"batch_size", len(batch), "error", err)
				return nil
			}
			for identity, score := range scored {
				record(identity, score)
			}
			return nil
		})
	}
	return group.Wait()
}

func (r *RemoteScorer) scoreBatch(ctx context.Context, req ports.ScoreRequest, batch []scoreUnit) (map[string]float64, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Consulta: %s\n\nDocumentos:\n", req.Query)
	for i, unit := range batch {
		fmt.Fprintf(&prompt, "\n[%d] %s\n", i+1, unit.excerpt)
	}

	text, err := r.generator.Generate(ctx, ports.GenerationRequest{
		Model:           req.Model,
		SystemPrompt:    scoringSystemPrompt,
		UserPrompt:      prompt.String(),
		Temperature:     0.0,
		MaxOutputTokens: 1200,
	})
	if err != nil {
		return nil, err
	}

	raw := jsonArrayRE.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("no json array in scoring response")
	}
	var parsed []batchScores
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse scoring response: %w", err)
	}

	out := make(map[string]float64, len(batch))
	for _, entry := range parsed {
		idx := entry.ID - 1
		if idx < 0 || idx >= len(batch) {
			continue
		}
		out[batch[idx].identity] = compositeScore(entry)
	}
	return out, nil
}

// refine recalibrates the current best candidates in one extra request and
// blends the recalibrated score with the aggregated base score. Any failure
// keeps the base scores untouched.
func (r *RemoteScorer) refine(ctx context.Context, req ports.ScoreRequest, base []float64) []float64 {
	scores := make([]float64, len(base))
	copy(scores, base)

	topN := refineTopN
	if topN > len(base) {
		topN = len(base)
	}
	if topN < refineMinUnits {
		return scores
	}

	order := make([]int, len(base))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return base[order[a]] > base[order[b]]
	})
	order = order[:topN]

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Consulta: %s\n\nDocumentos:\n", req.Query)
	for i, idx := range order {
		fmt.Fprintf(&prompt, "\nID=%d\nBaseScore=%.4f\n%s\n",
			i+1, base[idx], signal.SemanticExcerpt(&req.Candidates[idx], refineExcerptChars))
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return scores
	}
	text, err := r.generator.Generate(ctx, ports.GenerationRequest{
		Model:           req.Model,
		SystemPrompt:    refineSystemPrompt,
		UserPrompt:      prompt.String(),
		Temperature:     0.0,
		MaxOutputTokens: 1200,
	})
	if err != nil {
		r.logger.Warn("refinement request failed, keeping base scores", "error", err)
		return scores
	}

	raw := jsonArrayRE.FindString(text)
	if raw == "" {
		return scores
	}
	var parsed []batchScores
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		r.logger.Warn("refinement response unparsable, keeping base scores", "error", err)
		return scores
	}

	for _, entry := range parsed {
		pos := entry.ID - 1
		if pos < 0 || pos >= len(order) || entry.Score == nil {
			continue
		}
		idx := order[pos]
		scores[idx] = clamp01(refineBlend*clamp01(*entry.Score) + (1-refineBlend)*base[idx])
	}
	return scores
}

func meanStddev(values []float64) (float64, float64) {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

var _ ports.SemanticScorer = (*RemoteScorer)(nil)
