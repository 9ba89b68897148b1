package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"specflow/internal/auth"
	"specflow/internal/config"
	"specflow/internal/handler"
	"specflow/internal/llm"
	"specflow/internal/materialize"
	"specflow/internal/metrics"
	"specflow/internal/middleware"
	"specflow/internal/repository/postgres"
	"specflow/internal/service"
	"specflow/internal/speccli"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.OpenLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// JWT verifier
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Database
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Repositories
	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	projectRepo := postgres.NewProjectRepository(repoConfig)
	proposalRepo := postgres.NewProposalRepository(repoConfig)
	contentRepo := postgres.NewContentRepository(repoConfig)
	reviewRepo := postgres.NewReviewRepository(repoConfig)
	auditRepo := postgres.NewAuditRepository(repoConfig)
	usageRepo := postgres.NewUsageRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Validator CLI with transient-fault retry
	cliValidator := speccli.NewCLIValidator(cfg.ValidatorBinary, cfg.ValidatorTimeout, logger)
	validator := speccli.NewRetryingValidator(cliValidator, logger)

	// Instrumentation
	m := metrics.New()
	validator.OnRetry = func(int) { m.ValidatorRetries.Inc() }

	// LLM generation
	generator, err := llm.NewGenerator(cfg)
	if err != nil {
		log.Fatalf("Failed to setup LLM provider: %v", err)
	}
	prompts, err := llm.NewPromptRegistry()
	if err != nil {
		log.Fatalf("Failed to load prompt templates: %v", err)
	}
	logger.Info("LLM provider initialized", "provider", generator.Name())

	// Services
	materializer := materialize.NewMaterializer(logger)
	audit := service.NewAuditRecorder(auditRepo, logger)
	projectService := service.NewProjectService(projectRepo, cfg.ProjectsRoot, logger)
	contentService := service.NewContentService(proposalRepo, contentRepo, txManager, audit, m, logger)
	reviewService := service.NewReviewService(proposalRepo, reviewRepo, txManager, audit, logger)
	proposalService := service.NewProposalService(proposalRepo, contentRepo, reviewRepo, txManager, audit, logger)
	lifecycleService := service.NewLifecycleService(
		proposalRepo, projectRepo, contentRepo, reviewService,
		materializer, validator, txManager, audit, m, logger,
	)
	iterationService := service.NewIterationService(
		proposalRepo, reviewRepo, usageRepo, contentService, generator, prompts, cfg.DefaultModel, logger,
	)

	// Handlers
	projectHandler := handler.NewProjectHandler(projectService, logger)
	proposalHandler := handler.NewProposalHandler(proposalService, lifecycleService, iterationService, logger)
	contentHandler := handler.NewContentHandler(contentService, logger)
	reviewHandler := handler.NewReviewHandler(reviewService, logger)
	auditHandler := handler.NewAuditHandler(audit, logger)

	logger.Info("services initialized")

	// Router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.Handle("GET /metrics", m.Handler())

	// Project routes
	mux.HandleFunc("GET /api/projects", projectHandler.ListProjects)
	mux.HandleFunc("POST /api/projects", projectHandler.CreateProject)
	mux.HandleFunc("GET /api/projects/{id}", projectHandler.GetProject)
	mux.HandleFunc("PATCH /api/projects/{id}", projectHandler.UpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", projectHandler.DeleteProject)

	// Proposal routes
	mux.HandleFunc("POST /api/projects/{id}/proposals", proposalHandler.CreateProposal)
	mux.HandleFunc("GET /api/projects/{id}/proposals", proposalHandler.ListProposals)
	mux.HandleFunc("GET /api/proposals/{id}", proposalHandler.GetProposal)
	mux.HandleFunc("DELETE /api/proposals/{id}", proposalHandler.DeleteProposal)
	mux.HandleFunc("POST /api/proposals/{id}/retire", proposalHandler.RetireProposal)

	// Lifecycle transitions
	mux.HandleFunc("POST /api/proposals/{id}/submit", proposalHandler.Submit)
	mux.HandleFunc("POST /api/proposals/{id}/return-to-draft", proposalHandler.ReturnToDraft)
	mux.HandleFunc("POST /api/proposals/{id}/mark-ready", proposalHandler.MarkReady)
	mux.HandleFunc("POST /api/proposals/{id}/merge", proposalHandler.Merge)
	mux.HandleFunc("POST /api/proposals/{id}/validate-draft", proposalHandler.ValidateDraft)
	mux.HandleFunc("POST /api/proposals/{id}/iterate/{path...}", proposalHandler.Iterate)
	mux.HandleFunc("GET /api/proposals/{id}/usage", proposalHandler.Usage)

	// Content routes
	mux.HandleFunc("GET /api/proposals/{id}/content", contentHandler.ListFiles)
	mux.HandleFunc("GET /api/proposals/{id}/content/{path...}", contentHandler.GetFile)
	mux.HandleFunc("PUT /api/proposals/{id}/content/{path...}", contentHandler.WriteFile)
	mux.HandleFunc("GET /api/proposals/{id}/versions/{path...}", contentHandler.ListVersions)
	mux.HandleFunc("GET /api/proposals/{id}/version/{version}/{path...}", contentHandler.GetVersion)
	mux.HandleFunc("POST /api/proposals/{id}/rollback/{path...}", contentHandler.Rollback)

	// Review routes
	mux.HandleFunc("POST /api/proposals/{id}/comments", reviewHandler.CreateComment)
	mux.HandleFunc("GET /api/proposals/{id}/comments", reviewHandler.ListComments)
	mux.HandleFunc("GET /api/proposals/{id}/comments/stats", reviewHandler.CommentStats)
	mux.HandleFunc("PATCH /api/proposals/{id}/comments/{commentID}", reviewHandler.UpdateComment)
	mux.HandleFunc("DELETE /api/proposals/{id}/comments/{commentID}", reviewHandler.DeleteComment)
	mux.HandleFunc("POST /api/proposals/{id}/comments/{commentID}/resolve", reviewHandler.ResolveComment)
	mux.HandleFunc("POST /api/proposals/{id}/comments/{commentID}/reopen", reviewHandler.ReopenComment)
	mux.HandleFunc("POST /api/proposals/{id}/comments/{commentID}/select", reviewHandler.SelectComment)

	// Audit trail (admin only)
	mux.HandleFunc("GET /api/audit", auditHandler.ListEvents)

	// Build middleware chain
	var h http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS -> Recovery -> Logging -> Auth -> Routes
	h = middleware.Auth(jwtVerifier)(h)
	h = middleware.RequestLogger(logger)(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
