// Package metric provides Prometheus metrics for credvault.
//
// It exposes counters and histograms for unlock attempts, record
// operations, store writes and audit appends.
package metric

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

const namespace = "credvault"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// Registry holds all application metrics on a private Prometheus registry.
//
// All methods are safe on a nil *Registry, which records nothing.
type Registry struct {
	registry *prometheus.Registry

	// Session metrics
	UnlockAttempts *prometheus.CounterVec
	Lockouts       prometheus.Counter
	SessionsActive prometheus.Gauge
	KDFDuration    prometheus.Histogram

	// Record metrics
	RecordOps *prometheus.CounterVec

	// Storage metrics
	StoreWrites       *prometheus.CounterVec
	StoreWriteRetries prometheus.Counter
	StoreReloads      prometheus.Counter
	StoreRecoveries   prometheus.Counter

	// Audit metrics
	AuditAppends *prometheus.CounterVec
	KVSizeBytes  *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with Go and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		UnlockAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlock_attempts_total",
			Help:      "Vault unlock attempts by result.",
		}, []string{"result"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockouts_total",
			Help:      "Times a vault entered a lockout cooldown.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Currently unlocked sessions.",
		}),
		KDFDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kdf_duration_seconds",
			Help:      "Time spent deriving keys from passphrases.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		RecordOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_operations_total",
			Help:      "Record operations by operation and result.",
		}, []string{"op", "result"}),
		StoreWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Atomic store replacements by result.",
		}, []string{"result"}),
		StoreWriteRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_retries_total",
			Help:      "Store writes retried after a transient failure.",
		}),
		StoreReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_reloads_total",
			Help:      "Store reloads after an external change.",
		}),
		StoreRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_recoveries_total",
			Help:      "Stores opened from their backup copy.",
		}),
		AuditAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_appends_total",
			Help:      "Audit log appends by result.",
		}, []string{"result"}),
		KVSizeBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "kv_size_bytes",
			Help:      "Audit KV engine size by part.",
		}, []string{"part"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.UnlockAttempts,
		r.Lockouts,
		r.SessionsActive,
		r.KDFDuration,
		r.RecordOps,
		r.StoreWrites,
		r.StoreWriteRetries,
		r.StoreReloads,
		r.StoreRecoveries,
		r.AuditAppends,
		r.KVSizeBytes,
	)

	return r
}

// Register adds a custom collector.
func (r *Registry) Register(c prometheus.Collector) error {
	if r == nil {
		return nil
	}
	return r.registry.Register(c)
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteText writes all metrics in the Prometheus text exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// RecordUnlock counts an unlock attempt.
func (r *Registry) RecordUnlock(result string) {
	if r == nil {
		return
	}
	r.UnlockAttempts.WithLabelValues(result).Inc()
}

// IncLockout counts a lockout.
func (r *Registry) IncLockout() {
	if r == nil {
		return
	}
	r.Lockouts.Inc()
}

// IncSessionActive increments the active session gauge.
func (r *Registry) IncSessionActive() {
	if r == nil {
		return
	}
	r.SessionsActive.Inc()
}

// DecSessionActive decrements the active session gauge.
func (r *Registry) DecSessionActive() {
	if r == nil {
		return
	}
	r.SessionsActive.Dec()
}

// ObserveKDF records a key derivation duration.
func (r *Registry) ObserveKDF(d time.Duration) {
	if r == nil {
		return
	}
	r.KDFDuration.Observe(d.Seconds())
}

// RecordOp counts a record operation.
func (r *Registry) RecordOp(op, result string) {
	if r == nil {
		return
	}
	r.RecordOps.WithLabelValues(op, result).Inc()
}

// RecordStoreWrite counts a store replacement.
func (r *Registry) RecordStoreWrite(result string) {
	if r == nil {
		return
	}
	r.StoreWrites.WithLabelValues(result).Inc()
}

// IncStoreWriteRetry counts a retried store write.
func (r *Registry) IncStoreWriteRetry() {
	if r == nil {
		return
	}
	r.StoreWriteRetries.Inc()
}

// IncStoreReload counts a store reload.
func (r *Registry) IncStoreReload() {
	if r == nil {
		return
	}
	r.StoreReloads.Inc()
}

// IncStoreRecovery counts a store opened from backup.
func (r *Registry) IncStoreRecovery() {
	if r == nil {
		return
	}
	r.StoreRecoveries.Inc()
}

// RecordAuditAppend counts an audit append.
func (r *Registry) RecordAuditAppend(result string) {
	if r == nil {
		return
	}
	r.AuditAppends.WithLabelValues(result).Inc()
}

// SetKVSize records KV engine sizes.
func (r *Registry) SetKVSize(lsm, vlog int64) {
	if r == nil {
		return
	}
	r.KVSizeBytes.WithLabelValues("lsm").Set(float64(lsm))
	r.KVSizeBytes.WithLabelValues("vlog").Set(float64(vlog))
}
