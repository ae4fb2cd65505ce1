// Package jobs contains the worker-side dispatch table: one handler per job
// kind, wired to the scrapers, the analysis stages, and the spec generator.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promptops/insight-pipeline/internal/analysis"
	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/generation"
	"github.com/promptops/insight-pipeline/internal/logger"
	"github.com/promptops/insight-pipeline/internal/queue"
	"github.com/promptops/insight-pipeline/internal/scraper"
	"github.com/promptops/insight-pipeline/internal/storage"
	"github.com/promptops/insight-pipeline/internal/telemetry"
)

// analyzeNewThreshold is the minimum number of posts newer than a project's
// latest insight before analyze-new re-queues an analysis.
const analyzeNewThreshold = 20

// autoSourceLimit caps auto-created GitHub search sources.
const autoSourceLimit = 50

// Store is the persistence surface the dispatcher needs beyond what the
// analysis and generation stages carry themselves.
type Store interface {
	GetSource(ctx context.Context, id string) (*domain.Source, error)
	ListSourcesByProject(ctx context.Context, projectID string) ([]domain.Source, error)
	CreateSource(ctx context.Context, src *domain.Source) error
	ListProjects(ctx context.Context) ([]domain.Project, error)

	CreateScrapeJob(ctx context.Context, sourceID string) (*domain.ScrapeJob, error)
	FindLatestPendingScrapeJob(ctx context.Context, sourceID string) (*domain.ScrapeJob, error)
	MarkScrapeJobRunning(ctx context.Context, id string) error
	MarkScrapeJobCompleted(ctx context.Context, id string, postsFound int) error
	MarkScrapeJobFailed(ctx context.Context, id, errMsg string) error

	LatestPostTime(ctx context.Context, sourceIDs []string) (*time.Time, error)
	LatestInsightTime(ctx context.Context, projectID string) (*time.Time, error)
	CountPostsSince(ctx context.Context, sourceIDs []string, since time.Time) (int, error)
}

// Dispatcher implements queue.Handler with an exhaustive job-kind switch.
type Dispatcher struct {
	store       Store
	scrapers    scraper.Registry
	extractor   *analysis.Extractor
	prioritizer *analysis.Prioritizer
	generator   *generation.Generator
	queue       queue.Queue
	metrics     *telemetry.Metrics
	log         logger.Logger
}

func NewDispatcher(
	store Store,
	scrapers scraper.Registry,
	extractor *analysis.Extractor,
	prioritizer *analysis.Prioritizer,
	generator *generation.Generator,
	q queue.Queue,
	metrics *telemetry.Metrics,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:       store,
		scrapers:    scrapers,
		extractor:   extractor,
		prioritizer: prioritizer,
		generator:   generator,
		queue:       q,
		metrics:     metrics,
		log:         log,
	}
}

// Handle routes one job to its handler. An unknown kind is fatal and never
// retried.
func (d *Dispatcher) Handle(ctx context.Context, job *queue.Job) error {
	start := time.Now()

	var err error
	switch job.Kind {
	case domain.JobScrape:
		err = d.handleScrape(ctx, job)
	case domain.JobAnalyze:
		err = d.handleAnalyze(ctx, job)
	case domain.JobGenerate:
		err = d.handleGenerate(ctx, job)
	case domain.JobScrapeAll:
		err = d.handleScrapeAll(ctx)
	case domain.JobAnalyzeNew:
		err = d.handleAnalyzeNew(ctx)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownJobKind, job.Kind)
	}

	d.metrics.ObserveJob(string(job.Kind), time.Since(start), err)
	return err
}

// handleScrape runs the platform adapter for a source, tracking the lifecycle
// on the source's most recent PENDING scrape job row. Failures are recorded
// there and re-thrown so the queue's retry bookkeeping observes them too.
func (d *Dispatcher) handleScrape(ctx context.Context, job *queue.Job) error {
	var payload domain.ScrapePayload
	if err := job.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode scrape payload: %w", err)
	}

	tracked, err := d.store.FindLatestPendingScrapeJob(ctx, payload.SourceID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if tracked != nil {
		if err := d.store.MarkScrapeJobRunning(ctx, tracked.ID); err != nil {
			return err
		}
	}

	result, err := d.runScrape(ctx, payload.SourceID)
	if err != nil {
		if tracked != nil {
			if markErr := d.store.MarkScrapeJobFailed(ctx, tracked.ID, err.Error()); markErr != nil {
				d.log.Error("Failed to mark scrape job failed", logger.Error(markErr))
			}
		}
		return err
	}

	if tracked != nil {
		if err := d.store.MarkScrapeJobCompleted(ctx, tracked.ID, result.PostsFound); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) runScrape(ctx context.Context, sourceID string) (*scraper.Result, error) {
	src, err := d.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	adapter, err := d.scrapers.Lookup(src.Platform)
	if err != nil {
		return nil, err
	}

	result, err := adapter.Scrape(ctx, src)
	if err != nil {
		return nil, err
	}

	platform := string(src.Platform)
	d.metrics.AddPostsScraped(platform, result.PostsFound)
	d.metrics.AddEnrichFailures(platform, len(result.EnrichFailures))
	d.metrics.AddRateLimitSkips(platform, result.RateLimitSkips)
	return result, nil
}

// handleAnalyze runs extraction then prioritization, strictly in that order.
func (d *Dispatcher) handleAnalyze(ctx context.Context, job *queue.Job) error {
	var payload domain.AnalyzePayload
	if err := job.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode analyze payload: %w", err)
	}

	extracted, err := d.extractor.Extract(ctx, payload.ProjectID)
	if err != nil {
		return err
	}
	if !extracted.CacheHit {
		d.metrics.ObserveLLM("extract", extracted.Usage.InputTokens, extracted.Usage.OutputTokens)
	}

	prioritized, err := d.prioritizer.Prioritize(ctx, payload.ProjectID)
	if err != nil {
		return err
	}
	if prioritized.Updated > 0 {
		d.metrics.ObserveLLM("prioritize", prioritized.Usage.InputTokens, prioritized.Usage.OutputTokens)
	}
	return nil
}

func (d *Dispatcher) handleGenerate(ctx context.Context, job *queue.Job) error {
	var payload domain.GeneratePayload
	if err := job.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode generate payload: %w", err)
	}

	result, err := d.generator.Generate(ctx, payload.ProjectID, payload.SpecID)
	if err != nil {
		return err
	}
	d.metrics.ObserveLLM("generate", result.Usage.InputTokens, result.Usage.OutputTokens)
	return nil
}

// handleScrapeAll walks every keyworded project, auto-creating a GitHub
// search source where one is missing, and enqueues a scrape per source.
func (d *Dispatcher) handleScrapeAll(ctx context.Context) error {
	projects, err := d.store.ListProjects(ctx)
	if err != nil {
		return err
	}

	enqueued := 0
	for _, project := range projects {
		if len(project.Keywords) == 0 {
			continue
		}

		sources, err := d.store.ListSourcesByProject(ctx, project.ID)
		if err != nil {
			return err
		}

		if !hasAutoGitHubSource(sources) {
			auto := &domain.Source{
				ProjectID: project.ID,
				Platform:  domain.PlatformGitHub,
				URL:       strings.Join(project.Keywords, " "),
				Config: domain.JSONMap{
					"auto":  true,
					"limit": autoSourceLimit,
				},
			}
			if err := d.store.CreateSource(ctx, auto); err != nil {
				return err
			}
			d.log.Info("Auto-created GitHub search source",
				logger.String("project_id", project.ID),
				logger.String("query", auto.URL),
			)
			sources = append(sources, *auto)
		}

		for _, src := range sources {
			if _, err := d.store.CreateScrapeJob(ctx, src.ID); err != nil {
				return err
			}
			if _, err := d.queue.Enqueue(ctx, domain.JobScrape, domain.ScrapePayload{SourceID: src.ID}); err != nil {
				return err
			}
			enqueued++
		}
	}

	d.log.Info("Scrape-all completed", logger.Int("scrapes_enqueued", enqueued))
	return nil
}

func hasAutoGitHubSource(sources []domain.Source) bool {
	for _, src := range sources {
		if src.Platform != domain.PlatformGitHub {
			continue
		}
		cfg, err := src.ParseConfig()
		if err == nil && cfg.Auto {
			return true
		}
	}
	return false
}

// handleAnalyzeNew enqueues an analyze job for every project whose sources
// accumulated enough posts since its newest insight.
func (d *Dispatcher) handleAnalyzeNew(ctx context.Context) error {
	projects, err := d.store.ListProjects(ctx)
	if err != nil {
		return err
	}

	enqueued := 0
	for _, project := range projects {
		sources, err := d.store.ListSourcesByProject(ctx, project.ID)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			continue
		}
		sourceIDs := make([]string, len(sources))
		for i, s := range sources {
			sourceIDs[i] = s.ID
		}

		latestPost, err := d.store.LatestPostTime(ctx, sourceIDs)
		if err != nil {
			return err
		}
		if latestPost == nil {
			continue
		}

		latestInsight, err := d.store.LatestInsightTime(ctx, project.ID)
		if err != nil {
			return err
		}
		since := time.Time{}
		if latestInsight != nil {
			if !latestPost.After(*latestInsight) {
				continue
			}
			since = *latestInsight
		}

		newPosts, err := d.store.CountPostsSince(ctx, sourceIDs, since)
		if err != nil {
			return err
		}
		if newPosts < analyzeNewThreshold {
			continue
		}

		if _, err := d.queue.Enqueue(ctx, domain.JobAnalyze, domain.AnalyzePayload{ProjectID: project.ID}); err != nil {
			return err
		}
		enqueued++
		d.log.Info("Queued analysis for project with new posts",
			logger.String("project_id", project.ID),
			logger.Int("new_posts", newPosts),
		)
	}

	d.log.Info("Analyze-new completed", logger.Int("analyses_enqueued", enqueued))
	return nil
}
