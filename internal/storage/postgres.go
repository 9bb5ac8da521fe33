package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/analyzer"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/review"
)

// PostgresConfig configures the connection pool, grounded on the
// teacher's NewPostgresDB connection-string assembly.
type PostgresConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConnections int
	ConnTimeout    time.Duration
}

// PostgresRepository implements ReviewRepository against PostgreSQL via
// pgxpool, grounded directly on the teacher's
// internal/database/background_task_repository.go (QueryRow/Exec idiom,
// fmt.Errorf("...: %w") wrapping) and db.go (pool construction).
type PostgresRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgresRepository opens a connection pool per cfg and verifies
// connectivity with a bounded ping.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig, log *logrus.Logger) (*PostgresRepository, error) {
	if log == nil {
		log = logrus.New()
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.WithField("database", cfg.Name).Info("connected to postgres")
	return &PostgresRepository{pool: pool, log: log}, nil
}

// EnsureSchema applies schema.sql. A tiny helper rather than a
// migration framework — no migration library appears in the retrieved
// corpus's domain stack at this scale (documented stdlib choice).
func (r *PostgresRepository) EnsureSchema(ctx context.Context, ddl string) error {
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertRawReview implements ReviewRepository.
func (r *PostgresRepository) UpsertRawReview(ctx context.Context, rev review.Review) error {
	extra, err := json.Marshal(rev.Extra)
	if err != nil {
		return fmt.Errorf("upsert raw review: marshal extra: %w", err)
	}

	query := `
		INSERT INTO raw_reviews (review_id, date, rating, text, extra, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (review_id) DO UPDATE SET
			date = EXCLUDED.date,
			rating = EXCLUDED.rating,
			text = EXCLUDED.text,
			extra = EXCLUDED.extra,
			updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, rev.ReviewID, rev.Date, rev.Rating, rev.Text, extra); err != nil {
		return fmt.Errorf("upsert raw review %s: %w", rev.ReviewID, err)
	}
	return nil
}

// UpsertStructuredReview implements ReviewRepository.
func (r *PostgresRepository) UpsertStructuredReview(ctx context.Context, reviewID string, insights analyzer.Insights) error {
	topics, err := json.Marshal(insights.Topics)
	if err != nil {
		return fmt.Errorf("upsert structured review: marshal topics: %w", err)
	}
	problems, err := json.Marshal(insights.Problems)
	if err != nil {
		return fmt.Errorf("upsert structured review: marshal problems: %w", err)
	}
	suggestions, err := json.Marshal(insights.Suggestions)
	if err != nil {
		return fmt.Errorf("upsert structured review: marshal suggestions: %w", err)
	}

	query := `
		INSERT INTO structured_reviews (
			review_id, sentiment, score, topics, problems, suggestions, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (review_id) DO UPDATE SET
			sentiment = EXCLUDED.sentiment,
			score = EXCLUDED.score,
			topics = EXCLUDED.topics,
			problems = EXCLUDED.problems,
			suggestions = EXCLUDED.suggestions,
			updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, reviewID, insights.Sentiment, insights.Score, topics, problems, suggestions); err != nil {
		return fmt.Errorf("upsert structured review %s: %w", reviewID, err)
	}
	return nil
}

// UpsertStatus implements ReviewRepository.
func (r *PostgresRepository) UpsertStatus(ctx context.Context, s Status) error {
	query := `
		INSERT INTO review_statuses (
			review_id, status, stage, error, started_at, completed_at, duration_ms, retry_count, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (review_id) DO UPDATE SET
			status = EXCLUDED.status,
			stage = EXCLUDED.stage,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			retry_count = EXCLUDED.retry_count,
			updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, s.ReviewID, s.Status, s.Stage, s.Error, s.StartedAt, s.CompletedAt, s.Duration.Milliseconds(), s.RetryCount); err != nil {
		return fmt.Errorf("upsert status %s: %w", s.ReviewID, err)
	}
	return nil
}

// GetStatus implements ReviewRepository.
func (r *PostgresRepository) GetStatus(ctx context.Context, reviewID string) (Status, bool, error) {
	query := `
		SELECT review_id, status, stage, error, started_at, completed_at, duration_ms, retry_count
		FROM review_statuses WHERE review_id = $1
	`
	var s Status
	var durationMS int64
	err := r.pool.QueryRow(ctx, query, reviewID).Scan(
		&s.ReviewID, &s.Status, &s.Stage, &s.Error, &s.StartedAt, &s.CompletedAt, &durationMS, &s.RetryCount,
	)
	if err == pgx.ErrNoRows {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, fmt.Errorf("get status %s: %w", reviewID, err)
	}
	s.Duration = time.Duration(durationMS) * time.Millisecond
	return s, true, nil
}

// Clear implements ReviewRepository: one TRUNCATE statement covering all
// three relations (raw_reviews is referenced by foreign keys from the
// other two, so it can only be truncated together with them), per the
// "per-relation delete-all loops" redesign note in spec.md §9.
func (r *PostgresRepository) Clear(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("clear: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE structured_reviews, review_statuses, raw_reviews"); err != nil {
		return fmt.Errorf("clear: truncate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("clear: commit: %w", err)
	}
	r.log.Warn("cleared all review tables")
	return nil
}

// Close implements ReviewRepository.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
