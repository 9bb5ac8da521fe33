// Package maintenance implements the periodic background sweep of
// spec.md §4.3: promote retry-ready envelopes, reap expired claims,
// emit health signals and backlog alerts. Grounded on the teacher's
// AdaptiveWorkerPool scalingLoop/stuckDetectionLoop/heartbeatMonitorLoop
// (internal/background/worker_pool.go): ticker plus select on
// ctx.Done() with cooperative shutdown.
package maintenance

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/metrics"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/queue"
)

// Thresholds configures the health-threshold warnings of spec.md §4.3
// step 5.
type Thresholds struct {
	MainWarn   int64
	VisWarn    int64
	FailedWarn int64
	RetryWarn  int64
}

// Config tunes the Loop's cadence.
type Config struct {
	Interval         time.Duration
	SnapshotInterval time.Duration
	Thresholds       Thresholds
}

// Loop is the single long-running maintenance task per deployment.
type Loop struct {
	queue   *queue.ReliableQueue
	cfg     Config
	metrics *metrics.QueueMetrics
	log     *logrus.Entry
}

// New constructs a Loop.
func New(q *queue.ReliableQueue, cfg Config, m *metrics.QueueMetrics, log *logrus.Logger) *Loop {
	if log == nil {
		log = logrus.New()
	}
	if m == nil {
		m = metrics.GetGlobal()
	}
	return &Loop{
		queue:   q,
		cfg:     cfg,
		metrics: m,
		log:     log.WithField("component", "maintenance"),
	}
}

// Run executes maintenance cycles on a fixed ticker until ctx is
// cancelled. It is cooperative with shutdown: on receipt of a stop
// signal it finishes the in-progress cycle and exits, per spec.md §4.3.
func (l *Loop) Run(ctx context.Context) {
	l.log.WithField("interval", l.cfg.Interval).Info("maintenance loop starting")
	defer l.log.Info("maintenance loop stopped")

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	var snapshotTicker *time.Ticker
	var snapshotC <-chan time.Time
	if l.cfg.SnapshotInterval > 0 {
		snapshotTicker = time.NewTicker(l.cfg.SnapshotInterval)
		defer snapshotTicker.Stop()
		snapshotC = snapshotTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.runCycle(ctx, false)
		case <-snapshotC:
			l.runCycle(ctx, true)
		}
	}
}

// runCycle executes one maintenance cycle: step 1 Ping, step 2
// PromoteRetries, step 3 ReapExpired, step 4 Stats (+ periodic full
// snapshot), step 5 threshold warnings.
func (l *Loop) runCycle(ctx context.Context, snapshot bool) {
	if err := l.queue.Ping(ctx); err != nil {
		l.log.WithError(err).Warn("store unavailable, skipping maintenance cycle")
		l.metrics.MaintenanceCycles.WithLabelValues("store_unavailable").Inc()
		return
	}

	promoted, err := l.queue.PromoteRetries(ctx)
	if err != nil {
		l.log.WithError(err).Error("promote retries failed")
	}

	reaped, err := l.queue.ReapExpired(ctx)
	if err != nil {
		l.log.WithError(err).Error("reap expired failed")
	}

	stats, err := l.queue.Stats(ctx)
	if err != nil {
		l.log.WithError(err).Error("stats failed")
		l.metrics.MaintenanceCycles.WithLabelValues("store_unavailable").Inc()
		return
	}

	l.metrics.UpdateQueueDepth(stats.Main, stats.Processing, stats.Retry, stats.Failed, stats.LiveVisibilityKeys)

	fields := logrus.Fields{
		"main": stats.Main, "processing": stats.Processing,
		"retry": stats.Retry, "failed": stats.Failed,
		"live_visibility_keys": stats.LiveVisibilityKeys,
		"promoted": promoted, "reaped": reaped,
	}
	if snapshot {
		l.log.WithFields(fields).Info("maintenance cycle snapshot")
	} else {
		l.log.WithFields(fields).Debug("maintenance cycle")
	}

	l.checkThresholds(stats)
	l.metrics.MaintenanceCycles.WithLabelValues("ok").Inc()
}

func (l *Loop) checkThresholds(stats queue.Stats) {
	t := l.cfg.Thresholds
	if t.MainWarn > 0 && stats.Main > t.MainWarn {
		l.log.WithField("main", stats.Main).Warn("main queue backlog exceeds threshold")
	}
	if t.VisWarn > 0 && stats.LiveVisibilityKeys > t.VisWarn {
		l.log.WithField("live_visibility_keys", stats.LiveVisibilityKeys).Warn("live visibility key count exceeds threshold")
	}
	if t.FailedWarn > 0 && stats.Failed > t.FailedWarn {
		l.log.WithField("failed", stats.Failed).Warn("failed queue exceeds threshold")
	}
	if t.RetryWarn > 0 && stats.Retry > t.RetryWarn {
		l.log.WithField("retry", stats.Retry).Warn("retry queue exceeds threshold")
	}
}
