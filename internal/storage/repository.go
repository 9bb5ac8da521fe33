// Package storage implements the durable record store of spec.md §6:
// the three keyed relations raw_reviews, structured_reviews, and
// review_statuses, behind a single ReviewRepository interface per the
// "Cross-component helpers" redesign note in spec.md §9 (the source's
// three cyclically-owned DB helpers collapse into one small
// data-access interface with keyed-upsert operations).
package storage

import (
	"context"
	"time"

	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/analyzer"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/review"
)

// review status values, per spec.md §6.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Status is a row of review_statuses.
type Status struct {
	ReviewID    string
	Status      string
	Stage       string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Duration    time.Duration
	RetryCount  int
}

// ReviewRepository is the single durable-store interface covering
// keyed upserts across all three relations named in spec.md §6.
type ReviewRepository interface {
	// UpsertRawReview writes r keyed on ReviewID, creating or
	// overwriting the raw_reviews row.
	UpsertRawReview(ctx context.Context, r review.Review) error
	// UpsertStructuredReview writes insights keyed on reviewID.
	UpsertStructuredReview(ctx context.Context, reviewID string, insights analyzer.Insights) error
	// UpsertStatus writes a review_statuses row keyed on s.ReviewID.
	UpsertStatus(ctx context.Context, s Status) error
	// GetStatus returns the current status row for reviewID, or
	// (Status{}, false, nil) if none exists.
	GetStatus(ctx context.Context, reviewID string) (Status, bool, error)
	// Clear issues a bulk delete across all three relations, gated by
	// the operator CLI's YES_DELETE_IT token (spec.md §9's
	// "per-relation delete-all loops" redesign note: one bulk delete,
	// not one-row-at-a-time).
	Clear(ctx context.Context) error
	// Close releases any resources held by the repository.
	Close() error
}
