package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/config"
	"github.com/protoforge/protoforge/pkg/database"
	"github.com/protoforge/protoforge/pkg/handlers"
	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/middleware"
	"github.com/protoforge/protoforge/pkg/repositories"
	"github.com/protoforge/protoforge/pkg/retry"
	"github.com/protoforge/protoforge/pkg/services"
	"github.com/protoforge/protoforge/pkg/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

// memoryStoreSize bounds the in-process visualization store used when no
// object storage is configured.
const memoryStoreSize = 1024

// recorderQueueSize bounds completion records waiting to be written.
const recorderQueueSize = 256

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.EffectiveModel()),
		zap.Bool("object_storage", cfg.Storage.IsConfigured()))

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
		Retry: &retry.Config{
			MaxRetries:   10,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
	}, logger.Named("database"))
	if err != nil {
		return err
	}
	defer db.Close()

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger.Named("migrations")); err != nil {
		_ = sqlDB.Close()
		return err
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("Failed to close migration handle", zap.Error(err))
	}

	store, err := newBlobStore(cfg, logger)
	if err != nil {
		return err
	}

	client, closeRecorder, err := newCompletionClient(cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeRecorder()

	mux, err := newMux(cfg, db, client, store, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.Chain(mux, middleware.Recoverer(logger), middleware.RequestLogger(logger.Named("http"))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting protoforge",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exiting")
	return nil
}

func newBlobStore(cfg *config.Config, logger *zap.Logger) (storage.BlobStore, error) {
	if !cfg.Storage.IsConfigured() {
		logger.Warn("Object storage not configured, visualization blobs are kept in memory")
		return storage.NewMemoryStore(memoryStoreSize)
	}
	return storage.NewS3Store(storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	}, logger.Named("storage"))
}

// newCompletionClient builds the provider client behind a circuit breaker and,
// when enabled, the call recorder. The returned func drains pending records.
func newCompletionClient(cfg *config.Config, db *database.DB, logger *zap.Logger) (llm.CompletionClient, func(), error) {
	provider, err := llm.NewCompletionClient(&cfg.LLM, logger.Named("llm"))
	if err != nil {
		return nil, nil, err
	}

	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
		Threshold:  cfg.LLM.CircuitThreshold,
		ResetAfter: time.Duration(cfg.LLM.CircuitResetSeconds) * time.Second,
	})
	var client llm.CompletionClient = llm.NewBreakerClient(provider, breaker, logger.Named("llm"))

	if !cfg.LLM.RecordCalls {
		return client, func() {}, nil
	}

	recorder := llm.NewAsyncCallRecorder(repositories.NewLLMCallRepository(db.Pool), logger.Named("llm"), recorderQueueSize)
	return llm.NewRecordingClient(client, recorder, cfg.LLM.Provider), recorder.Close, nil
}

// newMux builds every dependency explicitly and registers the routes.
func newMux(cfg *config.Config, db *database.DB, client llm.CompletionClient, store storage.BlobStore, logger *zap.Logger) (*http.ServeMux, error) {
	var backoff *retry.Config
	if cfg.Generation.RetryDelayMs > 0 {
		backoff = &retry.Config{
			InitialDelay: time.Duration(cfg.Generation.RetryDelayMs) * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		}
	}

	model := cfg.LLM.EffectiveModel()
	repairer := services.NewJSONRepairer(client, cfg.LLM.RepairModel, cfg.Generation.MaxRetries, backoff, logger)

	featureGen := services.NewFeatureGenerator(repairer, services.FeatureGeneratorConfig{
		Model:          model,
		KnownGoodModel: cfg.LLM.KnownGoodModel,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
	}, logger)
	storyGen := services.NewStoryGenerator(client, services.StoryGeneratorConfig{
		Model:       model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, logger)
	diagramGen := services.NewDiagramGenerator(client, services.DiagramGeneratorConfig{
		Model:         model,
		FallbackModel: cfg.LLM.FallbackModel,
		MaxAttempts:   cfg.Generation.MaxRetries,
		EscalateAt:    cfg.Generation.EscalateAt,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		Backoff:       backoff,
	}, logger)

	projectRepo := repositories.NewProjectRepository(db.Pool)
	projectService, err := services.NewProjectService(projectRepo, services.DefaultProjectCacheSize, logger)
	if err != nil {
		return nil, err
	}

	generationService := services.NewGenerationService(services.GenerationDeps{
		Projects:     projectService,
		FeatureRepo:  repositories.NewFeatureRepository(db.Pool),
		StoryRepo:    repositories.NewStoryRepository(db.Pool),
		DiagramRepo:  repositories.NewDiagramRepository(db.Pool),
		Features:     featureGen,
		Stories:      storyGen,
		Diagrams:     diagramGen,
		FeatureCount: cfg.Generation.FeatureCount,
	}, logger)

	dispatcher := services.NewRegenerationDispatcher(featureGen, storyGen, diagramGen, logger)
	feedbackService := services.NewFeedbackService(repositories.NewFeedbackRepository(db.Pool), dispatcher, logger)
	visualizationService := services.NewVisualizationService(store, logger)
	llmCallService := services.NewLLMCallService(repositories.NewLLMCallRepository(db.Pool), projectService, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewProjectsHandler(projectService, cfg, logger.Named("projects")).RegisterRoutes(mux)
	handlers.NewGenerationHandler(generationService, logger.Named("generation")).RegisterRoutes(mux)
	handlers.NewFeedbackHandler(feedbackService, logger.Named("feedback")).RegisterRoutes(mux)
	handlers.NewVisualizationHandler(visualizationService, logger.Named("visualization")).RegisterRoutes(mux)
	handlers.NewLLMCallsHandler(llmCallService, logger.Named("llm-calls")).RegisterRoutes(mux)

	return mux, nil
}
