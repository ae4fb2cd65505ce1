// Package scheduler registers the recurring pipeline jobs at process start.
package scheduler

import (
	"context"
	"time"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/logger"
	"github.com/promptops/insight-pipeline/internal/queue"
)

// Stable recurring identifiers. Re-registering under the same id on restart
// keeps the existing schedule instead of doubling it.
const (
	ScrapeAllID  = "scrape-all-recurring"
	AnalyzeNewID = "analyze-new-recurring"
)

// Start registers the scrape-all and analyze-new recurring jobs.
func Start(ctx context.Context, q queue.Queue, scrapeEvery, analyzeEvery time.Duration, log logger.Logger) error {
	if err := q.EnqueueRecurring(ctx, ScrapeAllID, domain.JobScrapeAll, scrapeEvery); err != nil {
		return err
	}
	if err := q.EnqueueRecurring(ctx, AnalyzeNewID, domain.JobAnalyzeNew, analyzeEvery); err != nil {
		return err
	}

	log.Info("Scheduler started",
		logger.Duration("scrape_all_every", scrapeEvery),
		logger.Duration("analyze_new_every", analyzeEvery),
	)
	return nil
}
