package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewCollector("flowforge", reg)

	c.RunStarted()
	c.RunStarted()
	c.RunFinished("completed", 2*time.Second)
	c.TaskFinished("completed", "agent")
	c.TaskFinished("failed", "action")
	c.TaskRetried()
	c.SpendRecorded(150, 0.05)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksFinished.WithLabelValues("completed", "agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.taskRetries))
	assert.Equal(t, 150.0, testutil.ToFloat64(c.tokensUsed))
	assert.InDelta(t, 0.05, testutil.ToFloat64(c.costUSD), 1e-9)
}

func TestCollector_NilIsSafe(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.RunStarted()
	c.RunFinished("failed", time.Second)
	c.TaskFinished("cancelled", "human")
	c.TaskRetried()
	c.SpendRecorded(1, 0.001)
}
