package bootstrap

import (
	"fmt"
	"log/slog"

	"juris-rag/internal/config"
	"juris-rag/internal/core/ports"
	"juris-rag/internal/core/usecase"
	natsevents "juris-rag/internal/infrastructure/events/nats"
	"juris-rag/internal/infrastructure/llm/gemini"
	"juris-rag/internal/infrastructure/rerank"
	"juris-rag/internal/infrastructure/resilience"
	"juris-rag/internal/infrastructure/search/postgres"
	"juris-rag/internal/observability/metrics"
)

const ServiceName = "juris-rag-api"

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics
	Engine  ports.PrecedentSearchService

	closeFn func()
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewStore(db)

	tuning, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		// Clamped defaults still stand; a broken tuning file is not fatal.
		logger.Warn("tuning file ignored", "path", cfg.TuningFile, "error", err)
	}

	geminiClient := gemini.New(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiEmbedModel,
		resilience.NewExecutor(resilience.RemoteScoringConfig()))
	embedder := gemini.NewEmbedder(geminiClient)
	generator := gemini.NewGenerator(geminiClient)

	scorers := map[string]ports.SemanticScorer{
		"gemini": rerank.NewRemoteScorer(generator, cfg.RerankRPM, logger),
	}
	if cfg.LocalRerank != "" {
		scorers["local"] = rerank.NewLocalScorer(cfg.LocalRerank,
			resilience.NewExecutor(resilience.DefaultConfig()))
	}

	m := metrics.NewHTTPServerMetrics(ServiceName)

	var publisher ports.StagePublisher
	var closePublisher func()
	if cfg.NATSEnabled {
		np, err := natsevents.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, fmt.Errorf("init stage publisher: %w", err)
		}
		publisher = np
		closePublisher = np.Close
	}

	engine := usecase.NewEngine(embedder, store, scorers, generator, usecase.Config{
		PrimaryTable:   cfg.PrimaryTable,
		UserTable:      cfg.UserTable,
		DefaultBackend: cfg.DefaultRerank,
		Defaults:       tuning,
		Logger:         logger,
		Publisher:      publisher,
		Metrics:        m,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Engine:  engine,
		closeFn: func() {
			if closePublisher != nil {
				closePublisher()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
