package snapshot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
	"github.com/parsascontentcorner/guildsnapshot/internal/roster"
)

// Metrics holds Prometheus collectors for snapshot syncs and roster
// fetching. A nil *Metrics is valid and records nothing.
type Metrics struct {
	syncRuns      *prometheus.CounterVec
	rowsWritten   *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
	cacheOutcomes *prometheus.CounterVec
	pageDuration  prometheus.Histogram
	pageErrors    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.syncRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildsnapshot_sync_runs_total",
			Help: "snapshot sync runs by outcome reason",
		},
		[]string{"reason"},
	)
	m.rowsWritten = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guildsnapshot_rows_written",
			Help: "rows written to each snapshot table by the last successful sync",
		},
		[]string{"table"},
	)
	m.lastSuccess = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "guildsnapshot_last_success_timestamp_seconds",
			Help: "unix time of the last successful snapshot sync",
		},
	)
	m.cacheOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildsnapshot_roster_cache_outcomes_total",
			Help: "roster cache checks by outcome",
		},
		[]string{"outcome"},
	)
	m.pageDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guildsnapshot_member_page_duration_seconds",
			Help:    "latency of member page requests",
			Buckets: prometheus.DefBuckets,
		},
	)
	m.pageErrors = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "guildsnapshot_member_page_errors_total",
			Help: "member page requests that failed",
		},
	)

	return m
}

// ObserveCacheOutcome matches the roster cache observer signature
func (m *Metrics) ObserveCacheOutcome(_ string, outcome roster.Outcome) {
	if m == nil {
		return
	}
	m.cacheOutcomes.WithLabelValues(string(outcome)).Inc()
}

// ObservePage matches roster.PageObserver
func (m *Metrics) ObservePage(_ string, duration time.Duration, _ int, err error) {
	if m == nil {
		return
	}
	m.pageDuration.Observe(duration.Seconds())
	if err != nil {
		m.pageErrors.Inc()
	}
}

func (m *Metrics) observeSync(result models.SyncResult, at time.Time) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(string(result.Reason)).Inc()
	if !result.Success {
		return
	}
	m.rowsWritten.WithLabelValues(string(models.TableAccoladeRecipients)).Set(float64(result.AccoladeRowCount))
	m.rowsWritten.WithLabelValues(string(models.TableOfficerProfiles)).Set(float64(result.OfficerRowCount))
	m.lastSuccess.Set(float64(at.Unix()))
}
