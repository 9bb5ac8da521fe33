package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// testMetrics holds a single shared metrics instance to avoid Prometheus
// re-registration errors, following the teacher's
// internal/background/metrics_test.go getTestMetrics pattern.
var (
	testMetrics     *QueueMetrics
	testMetricsOnce sync.Once
)

// GetTestMetrics returns a process-wide QueueMetrics safe to share across
// this package's tests.
func GetTestMetrics() *QueueMetrics {
	testMetricsOnce.Do(func() {
		testMetrics = New()
	})
	return testMetrics
}

func TestNew(t *testing.T) {
	m := GetTestMetrics()

	assert.NotNil(t, m.QueueDepth)
	assert.NotNil(t, m.LiveVisibilityKeys)
	assert.NotNil(t, m.DequeueLatency)
	assert.NotNil(t, m.EnqueueLatency)
	assert.NotNil(t, m.Retries)
	assert.NotNil(t, m.DeadLettered)
	assert.NotNil(t, m.MaintenanceCycles)
	assert.NotNil(t, m.PipelineDuration)
}

func TestUpdateQueueDepth(t *testing.T) {
	m := GetTestMetrics()
	assert.NotPanics(t, func() {
		m.UpdateQueueDepth(5, 2, 1, 0, 2)
	})
}
