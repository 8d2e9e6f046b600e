package metrics_test

import (
	"strings"
	"testing"

	"MarketHarvest/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.QuoteAttempt("tencent", "error")
	m.QuoteAttempt("tencent", "error")
	m.NewsItems(3, 2)
	m.NewsFailures(4)
	m.SchedulerRunning(true)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	expected := `
# HELP marketharvest_news_consecutive_failures Current consecutive failed ingestion cycles.
# TYPE marketharvest_news_consecutive_failures gauge
marketharvest_news_consecutive_failures 4
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "marketharvest_news_consecutive_failures"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.QuoteAttempt("x", "ok")
		m.QuoteRequest("A", "ok")
		m.CacheLookup(true)
		m.NewsCycle("ok")
		m.NewsItems(1, 1)
		m.NewsFailures(1)
		m.HashCacheSize(1)
		m.SchedulerRunning(false)
	})
}
