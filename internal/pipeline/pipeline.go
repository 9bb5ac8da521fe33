// Package pipeline implements the per-message idempotent state machine
// of spec.md §4.5: persist the raw record, mark IN_PROGRESS, call the
// external analyzer, persist structured insights, mark COMPLETED or
// FAILED. Grounded on the teacher's executeTask/handleTaskSuccess/
// handleTaskError status-transition bookkeeping
// (internal/background/worker_pool.go), adapted to the three-relation
// upsert contract of spec.md §4.5/§6.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/analyzer"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/queue"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/review"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/storage"
)

// Insights re-exports analyzer.Insights so callers of Pipeline don't
// need to import the analyzer package just to read a result.
type Insights = analyzer.Insights

// Pipeline is the interface the Worker depends on.
type Pipeline interface {
	Process(ctx context.Context, env *queue.Envelope) (Insights, error)
}

// ReviewPipeline is the production Pipeline. It is idempotent on
// review_id: every write to the durable store is an upsert keyed on
// review_id, so invoking Process any number of times for the same
// envelope's payload converges on one persisted outcome.
//
// Counter authority (resolves the Open Question in spec.md §9): the
// envelope's retry_count, incremented by the queue's own Nack/
// ReapExpired, is authoritative for queue lifecycle and backoff math.
// review_statuses.retry_count is a user-visible audit copy written here
// whenever a new envelope retry count is observed; it is never read
// back to compute backoff.
type ReviewPipeline struct {
	repo     storage.ReviewRepository
	analyzer analyzer.Analyzer
}

// New constructs a ReviewPipeline.
func New(repo storage.ReviewRepository, an analyzer.Analyzer) *ReviewPipeline {
	return &ReviewPipeline{repo: repo, analyzer: an}
}

// Process implements Pipeline.
func (p *ReviewPipeline) Process(ctx context.Context, env *queue.Envelope) (Insights, error) {
	var r review.Review
	if err := env.UnmarshalPayload(&r); err != nil {
		return Insights{}, fmt.Errorf("process: %w", err)
	}

	if err := p.repo.UpsertRawReview(ctx, r); err != nil {
		return Insights{}, fmt.Errorf("process %s: persist raw review: %w", r.ReviewID, err)
	}

	now := time.Now().UTC()
	if err := p.repo.UpsertStatus(ctx, storage.Status{
		ReviewID:   r.ReviewID,
		Status:     storage.StatusInProgress,
		Stage:      "analyze",
		StartedAt:  now,
		RetryCount: env.RetryCount,
	}); err != nil {
		return Insights{}, fmt.Errorf("process %s: mark in_progress: %w", r.ReviewID, err)
	}

	insights, err := p.analyzer.Analyze(ctx, r)
	if err != nil {
		completedAt := time.Now().UTC()
		if statusErr := p.repo.UpsertStatus(ctx, storage.Status{
			ReviewID:    r.ReviewID,
			Status:      storage.StatusFailed,
			Stage:       "analyze",
			Error:       err.Error(),
			StartedAt:   now,
			CompletedAt: &completedAt,
			RetryCount:  env.RetryCount,
		}); statusErr != nil {
			return Insights{}, fmt.Errorf("process %s: mark failed: %w", r.ReviewID, statusErr)
		}
		return Insights{}, fmt.Errorf("%w: %v", queue.ErrPipelineTransient, err)
	}

	if err := p.repo.UpsertStructuredReview(ctx, r.ReviewID, insights); err != nil {
		return Insights{}, fmt.Errorf("process %s: persist insights: %w", r.ReviewID, err)
	}

	completedAt := time.Now().UTC()
	if err := p.repo.UpsertStatus(ctx, storage.Status{
		ReviewID:    r.ReviewID,
		Status:      storage.StatusCompleted,
		Stage:       "analyze",
		StartedAt:   now,
		CompletedAt: &completedAt,
		Duration:    completedAt.Sub(now),
		RetryCount:  env.RetryCount,
	}); err != nil {
		return Insights{}, fmt.Errorf("process %s: mark completed: %w", r.ReviewID, err)
	}

	return insights, nil
}
