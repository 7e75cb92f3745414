package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/mindmesh-ai/mindmesh/internal/api/handlers"
	"github.com/mindmesh-ai/mindmesh/internal/config"
	"github.com/mindmesh-ai/mindmesh/internal/database"
	"github.com/mindmesh-ai/mindmesh/internal/embedder"
	"github.com/mindmesh-ai/mindmesh/internal/ingest"
	"github.com/mindmesh-ai/mindmesh/internal/jobs"
	"github.com/mindmesh-ai/mindmesh/internal/llm"
	"github.com/mindmesh-ai/mindmesh/internal/repository"
	"github.com/mindmesh-ai/mindmesh/internal/server"
	"github.com/mindmesh-ai/mindmesh/internal/service"
	"github.com/mindmesh-ai/mindmesh/internal/storage"
	"github.com/mindmesh-ai/mindmesh/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the mindmesh API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if a DSN is configured
	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	collectionRepo := repository.NewCollectionRepository(pool)
	fileRepo := repository.NewFileRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	assistantRepo := repository.NewAssistantRepository(pool)
	completionLogRepo := repository.NewCompletionLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	emb := embedder.NewOpenAIEmbedderWithConfig(embedder.Config{
		APIKey: cfg.OpenAIAPIKey,
		Model:  openai.EmbeddingModel(cfg.EmbeddingModel),
	})
	if !cfg.HasOpenAI() {
		log.Println("warning: OPENAI_API_KEY not set, ingestion and retrieval will fail")
	}

	registry := BuildPluginRegistry()

	ingestionSvc := service.NewIngestionService(collectionRepo, fileRepo, chunkRepo, txRunner, emb, registry)
	if cfg.HasS3() {
		archive, err := storage.NewArchive(ctx, storage.ArchiveConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create source archive: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure archive bucket: %w", err)
		}
		log.Printf("source archive bucket '%s' ready", cfg.S3Bucket)
		ingestionSvc = ingestionSvc.WithArchive(archive)
	}

	collectionSvc := service.NewCollectionService(collectionRepo, chunkRepo, cfg.EmbeddingModel)
	retrievalSvc := service.NewRetrievalService(collectionRepo, chunkRepo, emb)
	auditSvc := service.NewAuditService(completionLogRepo)

	var connectors []llm.Connector
	if cfg.HasOpenAI() {
		connectors = append(connectors, llm.NewOpenAIConnector(cfg.OpenAIAPIKey))
	}
	if cfg.HasAnthropic() {
		connectors = append(connectors, llm.NewAnthropicConnector(cfg.AnthropicAPIKey))
	}
	if cfg.HasGemini() {
		gemini, err := llm.NewGeminiConnector(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return fmt.Errorf("failed to create gemini connector: %w", err)
		}
		connectors = append(connectors, gemini)
	}
	connectorRegistry := llm.NewRegistry(connectors...)
	log.Printf("llm providers configured: %v", connectorRegistry.Providers())

	completionSvc := service.NewCompletionService(assistantRepo, retrievalSvc, connectorRegistry, auditSvc)

	janitor := jobs.NewJanitor(chunkRepo, completionLogRepo, cfg.AuditRetentionDays)
	worker := jobs.NewWorker(janitor, time.Hour)
	go worker.Start(ctx)
	log.Println("janitor worker started")

	routerCfg := server.RouterConfig{
		CollectionHandler: handlers.NewCollectionHandler(collectionSvc),
		IngestHandler:     handlers.NewIngestHandler(ingestionSvc),
		QueryHandler:      handlers.NewQueryHandler(retrievalSvc),
		CompletionHandler: handlers.NewCompletionHandler(completionSvc, assistantRepo),
		PluginsHandler:    handlers.NewPluginsHandler(registry),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// BuildPluginRegistry assembles the standard ingestion plugin set. The serve
// and plugins commands share it so `plugins` always reflects what the server
// would actually register.
func BuildPluginRegistry() *ingest.Registry {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return ingest.NewRegistry(
		ingest.NewFilePlugin(os.TempDir()),
		ingest.NewWebPlugin(httpClient),
		ingest.NewVideoPlugin(httpClient),
	)
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
