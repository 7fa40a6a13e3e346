package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
)

// SyncMetrics exposes reconciliation progress on the Prometheus registry so
// it can be scraped from the long-running process or pushed after a CLI run.
type SyncMetrics struct {
	records         *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	lastRunFetched  *prometheus.GaugeVec
	lastRunErrored  *prometheus.GaugeVec
	lastSuccess     *prometheus.GaugeVec
	walletConflicts prometheus.Counter
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registered on the default registry.
func Sync(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = NewSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the sync metrics singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func NewSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	m := &SyncMetrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "crmsync_sync_records_total",
			Help:        "Reconciled records by run kind, outcome and match strategy.",
			ConstLabels: labels,
		}, []string{"kind", "outcome", "strategy"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "crmsync_sync_runs_total",
			Help:        "Completed sync runs by kind.",
			ConstLabels: labels,
		}, []string{"kind", "truncated"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "crmsync_sync_run_duration_seconds",
			Help:        "Wall time of a sync run.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
			ConstLabels: labels,
		}, []string{"kind"}),
		lastRunFetched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "crmsync_sync_last_run_fetched",
			Help:        "Records fetched by the most recent run.",
			ConstLabels: labels,
		}, []string{"kind"}),
		lastRunErrored: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "crmsync_sync_last_run_errored",
			Help:        "Records that failed in the most recent run.",
			ConstLabels: labels,
		}, []string{"kind"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "crmsync_sync_last_finished_timestamp_seconds",
			Help:        "Unix time the most recent run finished.",
			ConstLabels: labels,
		}, []string{"kind"}),
		walletConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crmsync_wallet_conflicts_total",
			Help:        "Wallets moved from one company to another by imports.",
			ConstLabels: labels,
		}),
	}

	registerer.MustRegister(
		m.records,
		m.runs,
		m.runDuration,
		m.lastRunFetched,
		m.lastRunErrored,
		m.lastSuccess,
		m.walletConflicts,
	)
	return m
}

func (m *SyncMetrics) RecordProcessed(_ context.Context, kind domain.RunKind, outcome domain.RecordOutcome, strategy domain.MatchStrategy) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(string(kind), string(outcome), string(strategy)).Inc()
}

func (m *SyncMetrics) RunFinished(_ context.Context, result domain.SyncRunResult) {
	if m == nil {
		return
	}
	kind := string(result.Kind)
	truncated := "false"
	if result.Truncated {
		truncated = "true"
	}
	m.runs.WithLabelValues(kind, truncated).Inc()
	m.runDuration.WithLabelValues(kind).Observe(result.Duration().Seconds())
	m.lastRunFetched.WithLabelValues(kind).Set(float64(result.Fetched))
	m.lastRunErrored.WithLabelValues(kind).Set(float64(result.Errored + result.UsageErrored))
	if !result.FinishedAt.IsZero() {
		m.lastSuccess.WithLabelValues(kind).Set(float64(result.FinishedAt.Unix()))
	}
	if result.WalletConflicts > 0 {
		m.walletConflicts.Add(float64(result.WalletConflicts))
	}
}
