package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kvtrace/hitrate-sim/sim"
)

// replayCollectors exports per-trace replay totals in the Prometheus text
// format, for node_exporter's textfile collector or a later scrape.
type replayCollectors struct {
	calls       *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	tokens      *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	hitRate     *prometheus.GaugeVec
	peakTokens  *prometheus.GaugeVec
	capacityTok *prometheus.GaugeVec

	registry *prometheus.Registry
}

func newReplayCollectors() *replayCollectors {
	c := &replayCollectors{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hitrate_calls_total",
			Help: "Trace entries replayed.",
		}, []string{"trace"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hitrate_skipped_entries_total",
			Help: "Trace entries skipped because they could not be parsed or tokenized.",
		}, []string{"trace"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hitrate_tokens_total",
			Help: "Tokens by kind: input, output, prefix_matched, substring_matched.",
		}, []string{"trace", "kind"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hitrate_evicted_runs_total",
			Help: "Token runs evicted from the pool.",
		}, []string{"trace"}),
		hitRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hitrate_hit_rate",
			Help: "Fraction of input tokens served from cache, by matching mode.",
		}, []string{"trace", "mode"}),
		peakTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hitrate_pool_peak_tokens",
			Help: "Highest number of tokens retained by the pool.",
		}, []string{"trace"}),
		capacityTok: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hitrate_pool_capacity_tokens",
			Help: "Configured pool capacity in tokens.",
		}, []string{"trace"}),
		registry: prometheus.NewRegistry(),
	}
	c.registry.MustRegister(c.calls, c.skipped, c.tokens, c.evictions, c.hitRate, c.peakTokens, c.capacityTok)
	return c
}

// observe records the final metrics of one trace. Safe for concurrent use.
func (c *replayCollectors) observe(name string, capacity int64, m *sim.Metrics) {
	s := m.Summary()
	c.calls.WithLabelValues(name).Add(float64(m.TotalCalls))
	c.skipped.WithLabelValues(name).Add(float64(m.SkippedEntries))
	c.tokens.WithLabelValues(name, "input").Add(float64(m.TotalInputTokens))
	c.tokens.WithLabelValues(name, "output").Add(float64(m.TotalOutputTokens))
	c.tokens.WithLabelValues(name, "prefix_matched").Add(float64(m.TotalPrefixMatched))
	c.tokens.WithLabelValues(name, "substring_matched").Add(float64(m.TotalSubstringMatched))
	c.evictions.WithLabelValues(name).Add(float64(m.EvictedRuns))
	c.hitRate.WithLabelValues(name, "prefix").Set(s.PrefixHitRate)
	c.hitRate.WithLabelValues(name, "substring").Set(s.SubstringHitRate)
	c.peakTokens.WithLabelValues(name).Set(float64(m.PeakRetainedTokens))
	c.capacityTok.WithLabelValues(name).Set(float64(capacity))
}

// writeTextfile writes every collected series to path atomically.
func (c *replayCollectors) writeTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
