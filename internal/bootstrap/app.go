package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cais-backend/internal/analyses"
	"cais-backend/internal/feedback"
	"cais-backend/internal/llm"
	openai "cais-backend/internal/llm/openai"
	"cais-backend/internal/optimize"
	"cais-backend/internal/prompts"
	"cais-backend/internal/shared/config"
	"cais-backend/internal/shared/server"
	"cais-backend/internal/shared/storage/db"
	"cais-backend/internal/shared/storage/object"
	localstore "cais-backend/internal/shared/storage/object/local"
	s3store "cais-backend/internal/shared/storage/object/s3"
	"cais-backend/internal/usage"
)

// App holds shared dependencies.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Store           object.ObjectStore
	Registry        *prompts.Registry
	AnalysesRepo    analyses.Repo
	FeedbackRepo    feedback.Repo
	AnalysesService *analyses.Service
	FeedbackService *feedback.Service
	UsageService    *usage.Service
	Optimizer       *optimize.Optimizer
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := prompts.NewRegistry(store)
	if err := registry.Load(ctx); err != nil {
		return nil, fmt.Errorf("load prompt registry: %w", err)
	}
	if err := activateConfigured(ctx, registry, cfg); err != nil {
		return nil, err
	}

	llmClient, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		Store:    store,
		Registry: registry,
	}
	buildServices(app, llmClient)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		AnalysisHandler: analyses.NewHandler(app.AnalysesService),
		FeedbackHandler: feedback.NewHandler(app.FeedbackService),
		PromptHandler:   prompts.NewHandler(registry),
		OptimizeHandler: optimize.NewHandler(app.Optimizer),
		UsageHandler:    usage.NewHandler(app.UsageService),
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildLLM(cfg config.Config) (llm.Client, error) {
	client, err := openai.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, time.Duration(cfg.AnalyzeTimeoutSecs)*time.Second)
	if err != nil {
		return nil, err
	}
	return llm.NewRetrying(client, cfg.LLMMaxAttempts), nil
}

// activateConfigured repoints lineages to the configured labels when they
// differ from what was restored. Missing labels are a startup error so a
// typo'd deploy fails loudly instead of silently classifying with the wrong
// prompt.
func activateConfigured(ctx context.Context, registry *prompts.Registry, cfg config.Config) error {
	configured := map[prompts.Task]string{
		prompts.TaskJurisdiction: cfg.JurisdictionPrompt,
		prompts.TaskCounterparty: cfg.CounterpartyPrompt,
	}
	for task, label := range configured {
		if strings.TrimSpace(label) == "" {
			continue
		}
		active, err := registry.Active(task)
		if err == nil && active.Label == label {
			continue
		}
		if err := registry.Activate(ctx, task, label); err != nil {
			return fmt.Errorf("activate configured prompt %s/%s: %w", task, label, err)
		}
	}
	return nil
}

func buildServices(app *App, llmClient llm.Client) {
	var analysesRepo analyses.Repo
	var feedbackRepo feedback.Repo
	if app.DB != nil {
		analysesRepo = &analyses.PGRepo{DB: app.DB}
		feedbackRepo = &feedback.PGRepo{DB: app.DB}
	} else {
		analysesRepo = analyses.NewMemoryRepo()
		feedbackRepo = feedback.NewMemoryRepo()
	}

	classifier := analyses.NewClassifier(llmClient, app.Registry)
	analysesSvc := &analyses.Service{
		Repo:             analysesRepo,
		Store:            app.Store,
		Classifier:       classifier,
		Timeout:          time.Duration(app.Config.AnalyzeTimeoutSecs) * time.Second,
		BatchConcurrency: app.Config.BatchConcurrency,
	}
	feedbackSvc := &feedback.Service{
		Repo:    feedbackRepo,
		Results: analysesRepo,
		Store:   app.Store,
	}

	app.AnalysesRepo = analysesRepo
	app.FeedbackRepo = feedbackRepo
	app.AnalysesService = analysesSvc
	app.FeedbackService = feedbackSvc
	app.UsageService = &usage.Service{
		Results:  analysesRepo,
		Feedback: feedbackRepo,
		Registry: app.Registry,
	}
	app.Optimizer = &optimize.Optimizer{
		Registry:    app.Registry,
		Feedback:    feedbackSvc,
		Classifier:  classifier,
		MinExamples: app.Config.OptimizeMinExamples,
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
