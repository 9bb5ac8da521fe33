package storage

import (
	"context"
	"sync"

	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/analyzer"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/review"
)

// MemoryRepository is an in-memory ReviewRepository used by tests and
// by the operator CLI's "serve --no-db" mode (cmd/reviewqueue/main.go).
type MemoryRepository struct {
	mu         sync.Mutex
	rawReviews map[string]review.Review
	structured map[string]analyzer.Insights
	statuses   map[string]Status
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rawReviews: make(map[string]review.Review),
		structured: make(map[string]analyzer.Insights),
		statuses:   make(map[string]Status),
	}
}

// UpsertRawReview implements ReviewRepository.
func (m *MemoryRepository) UpsertRawReview(ctx context.Context, r review.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawReviews[r.ReviewID] = r
	return nil
}

// UpsertStructuredReview implements ReviewRepository.
func (m *MemoryRepository) UpsertStructuredReview(ctx context.Context, reviewID string, insights analyzer.Insights) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structured[reviewID] = insights
	return nil
}

// UpsertStatus implements ReviewRepository.
func (m *MemoryRepository) UpsertStatus(ctx context.Context, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[s.ReviewID] = s
	return nil
}

// GetStatus implements ReviewRepository.
func (m *MemoryRepository) GetStatus(ctx context.Context, reviewID string) (Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[reviewID]
	return s, ok, nil
}

// GetRawReview returns the persisted raw review for reviewID, for test
// assertions.
func (m *MemoryRepository) GetRawReview(reviewID string) (review.Review, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rawReviews[reviewID]
	return r, ok
}

// GetStructuredReview returns the persisted insights for reviewID, for
// test assertions.
func (m *MemoryRepository) GetStructuredReview(reviewID string) (analyzer.Insights, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.structured[reviewID]
	return i, ok
}

// Clear implements ReviewRepository.
func (m *MemoryRepository) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawReviews = make(map[string]review.Review)
	m.structured = make(map[string]analyzer.Insights)
	m.statuses = make(map[string]Status)
	return nil
}

// Close implements ReviewRepository.
func (m *MemoryRepository) Close() error { return nil }
