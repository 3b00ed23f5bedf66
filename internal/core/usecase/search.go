package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"juris-rag/internal/core/domain"
	"juris-rag/internal/core/ports"
	"juris-rag/internal/core/signal"
)

const lexicalBackend = "lexical"

const answerSystemPrompt = `Você é um assistente jurídico especializado em jurisprudência do STF e do STJ.

Regras obrigatórias:
1. Responda EXCLUSIVAMENTE com base nos documentos fornecidos no contexto.
2. Toda afirmação deve citar o documento de origem no formato [DOC. N].
3. Transcrições literais devem vir entre aspas, seguidas da citação.
4. Dê prioridade aos documentos de maior força normativa (Nível A e B) e diga expressamente quando um precedente é vinculante.
5. Decisões monocráticas e informativos não vinculam; se usá-los, diga isso.
6. Se os documentos não sustentarem uma resposta segura, responda apenas: "Não encontrei fundamento suficiente nos documentos recuperados."
Escreva em português, de forma objetiva e estruturada.`

// PipelineMetrics is the slice of instrumentation the engine needs. The
// concrete Prometheus implementation lives in observability/metrics.
type PipelineMetrics interface {
	ObserveStage(stage string, seconds float64)
	IncQueries(status string)
}

// Config wires the engine's tables, scoring backends and collaborators that
// have no behavior of their own.
type Config struct {
	PrimaryTable   string
	UserTable      string
	DefaultBackend string
	Defaults       domain.Tuning

	Logger    *slog.Logger
	Publisher ports.StagePublisher
	Metrics   PipelineMetrics
	Now       func() time.Time
}

// Engine implements ports.PrecedentSearchService: hybrid retrieval, semantic
// scoring, composite ranking, context assembly and citation validation.
type Engine struct {
	embedder  ports.Embedder
	store     ports.SearchStore
	scorers   map[string]ports.SemanticScorer
	generator ports.AnswerGenerator

	primaryTable   string
	userTable      string
	defaultBackend string
	defaults       domain.Tuning

	logger    *slog.Logger
	publisher ports.StagePublisher
	metrics   PipelineMetrics
	now       func() time.Time
}

func NewEngine(embedder ports.Embedder, store ports.SearchStore, scorers map[string]ports.SemanticScorer, generator ports.AnswerGenerator, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	defaults := cfg.Defaults
	if defaults.TopKHybrid == 0 {
		defaults = domain.DefaultTuning()
	}
	return &Engine{
		embedder:       embedder,
		store:          store,
		scorers:        scorers,
		generator:      generator,
		primaryTable:   cfg.PrimaryTable,
		userTable:      cfg.UserTable,
		defaultBackend: cfg.DefaultBackend,
		defaults:       defaults,
		logger:         logger,
		publisher:      cfg.Publisher,
		metrics:        cfg.Metrics,
		now:            nowFn,
	}
}

// stageEmitter fans stage events out to the request observer and the
// configured publisher. Neither sink may break the pipeline: observer panics
// are recovered and publish errors only logged.
type stageEmitter struct {
	engine  *Engine
	queryID string
	onStage func(domain.StageEvent)
	started time.Time
	timings map[string]float64
}

func (e *Engine) newEmitter(req domain.SearchRequest) *stageEmitter {
	return &stageEmitter{
		engine:  e,
		queryID: uuid.NewString(),
		onStage: req.OnStage,
		started: e.now(),
		timings: make(map[string]float64),
	}
}

func (s *stageEmitter) record(stage string, took time.Duration) {
	s.timings[stage] = took.Seconds()
	if s.engine.metrics != nil {
		s.engine.metrics.ObserveStage(stage, took.Seconds())
	}
}

func (s *stageEmitter) emit(ctx context.Context, stage string, candidates, returned int) {
	event := domain.StageEvent{
		QueryID:      s.queryID,
		Stage:        stage,
		Timings:      s.timings,
		Candidates:   candidates,
		ReturnedDocs: returned,
	}
	if s.onStage != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.engine.logger.Warn("stage observer panicked", "stage", stage, "panic", r)
				}
			}()
			s.onStage(event)
		}()
	}
	if s.engine.publisher != nil {
		if err := s.engine.publisher.Publish(ctx, event); err != nil {
			s.engine.logger.Warn("stage publish failed", "stage", stage, "error", err)
		}
	}
}

func (e *Engine) scorerFor(backend string) (ports.SemanticScorer, string) {
	name := strings.TrimSpace(backend)
	if name == "" {
		name = e.defaultBackend
	}
	if scorer, ok := e.scorers[name]; ok {
		return scorer, name
	}
	if scorer, ok := e.scorers[e.defaultBackend]; ok {
		return scorer, e.defaultBackend
	}
	return nil, lexicalBackend
}

// scoreCandidates asks the selected backend for raw semantic scores and
// degrades to the lexical heuristic when the backend fails outright.
func (e *Engine) scoreCandidates(ctx context.Context, query string, cands []domain.Candidate, backend string, cfg domain.Tuning) ([]float64, string) {
	scorer, name := e.scorerFor(backend)
	if scorer != nil {
		result, err := scorer.Score(ctx, ports.ScoreRequest{Query: query, Candidates: cands, Model: cfg.RerankModel})
		if err == nil && len(result.Scores) == len(cands) {
			if result.Backend != "" {
				name = result.Backend
			}
			return result.Scores, name
		}
		if err != nil {
			e.logger.Warn("semantic scoring failed, falling back to lexical overlap",
				"backend", name, "error", err)
		} else {
			e.logger.Warn("semantic scorer returned a short score vector, falling back",
				"backend", name, "got", len(result.Scores), "want", len(cands))
		}
	}
	scores := make([]float64, len(cands))
	for i := range cands {
		scores[i] = signal.FallbackScore(query, &cands[i])
	}
	return scores, lexicalBackend
}

// SearchAndRank runs the full retrieval and ranking pipeline and returns the
// ranked, deduplicated document list with its audit metadata.
func (e *Engine) SearchAndRank(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	emitter := e.newEmitter(req)
	result, emitter, err := e.searchAndRank(ctx, req, emitter)
	if err != nil {
		if e.metrics != nil {
			e.metrics.IncQueries("error")
		}
		return nil, err
	}
	emitter.emit(ctx, domain.StageDone, result.Meta.Candidates, result.Meta.ReturnedDocs)
	if e.metrics != nil {
		e.metrics.IncQueries("ok")
	}
	return result, nil
}

func (e *Engine) searchAndRank(ctx context.Context, req domain.SearchRequest, emitter *stageEmitter) (*domain.SearchResult, *stageEmitter, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, emitter, domain.WrapError(domain.ErrInvalidInput, "usecase.SearchAndRank", fmt.Errorf("empty query"))
	}
	cfg := e.defaults.Resolve(req.Overrides)

	emitter.emit(ctx, domain.StageEmbeddingStart, 0, 0)
	stageStart := e.now()
	vector, err := e.embedder.EmbedQuery(ctx, query)
	emitter.record("embedding", e.now().Sub(stageStart))
	if err != nil {
		return nil, emitter, domain.WrapError(errorKindForEmbedding(err), "usecase.SearchAndRank", err)
	}
	emitter.emit(ctx, domain.StageEmbeddingDone, 0, 0)

	emitter.emit(ctx, domain.StageRetrievalStart, 0, 0)
	stageStart = e.now()
	candidates, warnings, err := e.hybridRetrieve(ctx, query, vector, cfg, req)
	emitter.record("retrieval", e.now().Sub(stageStart))
	if err != nil {
		return nil, emitter, domain.WrapError(domain.ErrTemporary, "usecase.SearchAndRank", err)
	}
	emitter.emit(ctx, domain.StageRetrievalDone, len(candidates), 0)

	meta := domain.SearchMeta{
		QueryID:        emitter.queryID,
		Candidates:     len(candidates),
		DegradedTables: warnings,
		Timings:        emitter.timings,
		Weights:        cfg,
		PreferRecent:   req.PreferRecent,
	}
	if len(candidates) == 0 {
		return &domain.SearchResult{Documents: []domain.Candidate{}, Meta: meta}, emitter, nil
	}

	emitter.emit(ctx, domain.StageRerankStart, len(candidates), 0)
	stageStart = e.now()
	raw, backend := e.scoreCandidates(ctx, query, candidates, req.RerankBackend, cfg)
	docs := e.compositeRank(query, candidates, raw, backend, cfg, req, e.now())
	emitter.record("rerank", e.now().Sub(stageStart))
	emitter.emit(ctx, domain.StageRerankDone, len(candidates), len(docs))

	meta.RerankBackend = backend
	meta.ReturnedDocs = len(docs)
	meta.Sources = sourceScoreboard(docs)

	e.logger.Info("query ranked",
		"query_id", emitter.queryID,
		"candidates", len(candidates),
		"returned", len(docs),
		"backend", backend)
	return &domain.SearchResult{Documents: docs, Meta: meta}, emitter, nil
}

func sourceScoreboard(docs []domain.Candidate) map[string]int {
	if len(docs) == 0 {
		return nil
	}
	out := make(map[string]int, 2)
	for i := range docs {
		label := docs[i].SourceLabel
		if label == "" {
			label = string(docs[i].SourceKind)
		}
		if label == "" {
			label = string(domain.SourcePrimary)
		}
		out[label]++
	}
	return out
}

func errorKindForEmbedding(err error) error {
	if domain.IsKind(err, domain.ErrEmbeddingNotConfigured) {
		return domain.ErrEmbeddingNotConfigured
	}
	return domain.ErrEmbeddingUnavailable
}

// Answer runs SearchAndRank, assembles the grounding context, drafts the
// answer with the configured generator (falling back to the secondary model)
// and enforces the citation contract on the result.
func (e *Engine) Answer(ctx context.Context, req domain.SearchRequest) (*domain.AnswerResult, error) {
	emitter := e.newEmitter(req)
	result, emitter, err := e.searchAndRank(ctx, req, emitter)
	if err != nil {
		if e.metrics != nil {
			e.metrics.IncQueries("error")
		}
		return nil, err
	}
	cfg := result.Meta.Weights
	if len(result.Documents) == 0 {
		emitter.emit(ctx, domain.StageDone, 0, 0)
		if e.metrics != nil {
			e.metrics.IncQueries("ok")
		}
		return &domain.AnswerResult{Text: refusalMessage, Documents: result.Documents, Meta: result.Meta}, nil
	}
	if e.generator == nil {
		if e.metrics != nil {
			e.metrics.IncQueries("error")
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, "usecase.Answer", fmt.Errorf("no answer generator configured"))
	}

	query := strings.TrimSpace(req.Query)
	contextBlock := buildContext(query, result.Documents, cfg)
	userPrompt := "Documentos recuperados:\n\n" + contextBlock + "\n\nPergunta: " + query

	emitter.emit(ctx, domain.StageGenerationStart, result.Meta.Candidates, len(result.Documents))
	stageStart := e.now()
	text, genErr := e.generateWithFallback(ctx, cfg, userPrompt)
	emitter.record("generation", e.now().Sub(stageStart))
	emitter.emit(ctx, domain.StageGenerationDone, result.Meta.Candidates, len(result.Documents))
	if genErr != nil {
		e.logger.Error("answer generation failed on both models",
			"query_id", emitter.queryID, "error", genErr)
		text = "Não foi possível gerar a resposta no momento. Os documentos recuperados estão listados abaixo."
	}

	emitter.emit(ctx, domain.StageValidationStart, result.Meta.Candidates, len(result.Documents))
	stageStart = e.now()
	validated := validateAnswer(text, query, result.Documents, cfg)
	emitter.record("validation", e.now().Sub(stageStart))
	emitter.emit(ctx, domain.StageValidationDone, result.Meta.Candidates, len(result.Documents))
	emitter.emit(ctx, domain.StageDone, result.Meta.Candidates, len(result.Documents))

	if e.metrics != nil {
		e.metrics.IncQueries("ok")
	}
	return &domain.AnswerResult{Text: validated, Documents: result.Documents, Meta: result.Meta}, nil
}

func (e *Engine) generateWithFallback(ctx context.Context, cfg domain.Tuning, userPrompt string) (string, error) {
	models := []string{cfg.GenerationModel}
	if cfg.GenerationFallbackModel != "" && cfg.GenerationFallbackModel != cfg.GenerationModel {
		models = append(models, cfg.GenerationFallbackModel)
	}
	var lastErr error
	for _, model := range models {
		text, err := e.generator.Generate(ctx, ports.GenerationRequest{
			Model:           model,
			SystemPrompt:    answerSystemPrompt,
			UserPrompt:      userPrompt,
			Temperature:     cfg.GenerationTemperature,
			MaxOutputTokens: cfg.GenerationMaxTokens,
		})
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err != nil {
			lastErr = err
			e.logger.Warn("generation model failed, trying fallback", "model", model, "error", err)
		} else {
			lastErr = fmt.Errorf("model %s returned empty text", model)
		}
	}
	return "", lastErr
}

var _ ports.PrecedentSearchService = (*Engine)(nil)
