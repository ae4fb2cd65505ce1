// Package bootstrap handles application initialization and lifecycle
// management for the insight pipeline service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/promptops/insight-pipeline/internal/analysis"
	"github.com/promptops/insight-pipeline/internal/generation"
	"github.com/promptops/insight-pipeline/internal/jobs"
	"github.com/promptops/insight-pipeline/internal/llm"
	"github.com/promptops/insight-pipeline/internal/logger"
	"github.com/promptops/insight-pipeline/internal/queue"
	"github.com/promptops/insight-pipeline/internal/scheduler"
	"github.com/promptops/insight-pipeline/internal/scraper"
	"github.com/promptops/insight-pipeline/internal/telemetry"
)

const (
	version         = "dev"
	queueName       = "promptops"
	shutdownTimeout = 10 * time.Second

	// Unauthenticated GitHub quota; real values come from response headers.
	githubInitialQuota = 60
)

// Start initializes and runs the pipeline application until it receives a
// termination signal.
func Start() error {
	// Phase 1: Load config and create logger
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := CreateLogger(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Phase 2: Setup backing stores
	store, err := SetupDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("Failed to close database", logger.Error(closeErr))
		}
	}()

	redisClient, err := SetupRedis(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			log.Error("Failed to close redis", logger.Error(closeErr))
		}
	}()

	// Phase 3: Build the pipeline
	metrics := telemetry.New()
	llmClient := llm.NewAnthropic(cfg.Anthropic.APIKey, cfg.Anthropic.Model, log)
	httpClient := scraper.NewHTTPClient()

	scrapers := scraper.Registry{}
	reddit := scraper.NewReddit(store, httpClient, cfg.Scraper.UserAgent, log)
	scrapers[reddit.Platform()] = reddit
	hn := scraper.NewHackerNews(store, httpClient, log)
	scrapers[hn.Platform()] = hn
	ph := scraper.NewProductHunt(store, httpClient, cfg.Scraper.ProductHuntAPIKey, log)
	scrapers[ph.Platform()] = ph
	ghLimiter := scraper.NewQuotaLimiter("github", githubInitialQuota, log)
	gh := scraper.NewGitHub(store, httpClient, ghLimiter, cfg.Scraper.GitHubToken, log)
	scrapers[gh.Platform()] = gh

	extractor := analysis.NewExtractor(store, llmClient, redisClient, cfg.Scraper.AnalysisCacheTTL, log)
	prioritizer := analysis.NewPrioritizer(store, llmClient, log)
	generator := generation.NewGenerator(store, llmClient, log)

	q := queue.NewRedis(redisClient, queueName, cfg.Worker.MaxAttempts, log)
	dispatcher := jobs.NewDispatcher(store, scrapers, extractor, prioritizer, generator, q, metrics, log)
	worker := queue.NewWorker(q, dispatcher, cfg.Worker.Concurrency, log)

	// Phase 4: Run worker, scheduler, and HTTP server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Start(ctx)
	defer worker.Stop()

	if err := scheduler.Start(ctx, q, cfg.Scheduler.ScrapeInterval, cfg.Scheduler.AnalyzeInterval, log); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	server := SetupHTTPServer(cfg, store, redisClient, q, metrics, log)
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serverErr:
		log.Error("Server error", logger.Error(err))
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down server cleanly", logger.Error(err))
	}

	log.Info("Server exited")
	return nil
}
