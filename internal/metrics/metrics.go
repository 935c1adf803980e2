// Package metrics exposes optional Prometheus instrumentation for the
// replica core. Grounded on the teacher's pkg/metrics pattern: a nil
// *Replica metrics value is always safe to call methods on and simply
// does nothing, so callers (internal/replica) never need an `if
// metrics != nil` guard at every call site — the guard lives once,
// inside each method.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Replica is the set of gauges/counters the replica core reports.
// A nil *Replica is valid and turns every method into a no-op, so a
// replica started without metrics enabled pays no instrumentation
// cost.
type Replica struct {
	view           prometheus.Gauge
	opNumber       prometheus.Gauge
	commitNumber   prometheus.Gauge
	viewChanges    prometheus.Counter
	quorumLatency  prometheus.Histogram
	messagesByType *prometheus.CounterVec
}

// NewReplica registers a Replica's metrics against reg under the
// given replica id label and returns it. Pass an untyped nil reg to
// skip registration (e.g. in tests) while still getting a usable,
// non-nil *Replica that just doesn't get scraped; a nil
// *prometheus.Registry wrapped in reg is not nil and is registered
// against.
func NewReplica(reg prometheus.Registerer, replicaID uint64) *Replica {
	labels := prometheus.Labels{"replica_id": strconv.FormatUint(replicaID, 10)}

	r := &Replica{
		view: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "vrd",
			Name:        "view_number",
			Help:        "Current view number.",
			ConstLabels: labels,
		}),
		opNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "vrd",
			Name:        "op_number",
			Help:        "Current op-number (log length).",
			ConstLabels: labels,
		}),
		commitNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "vrd",
			Name:        "commit_number",
			Help:        "Current commit-number (entries applied).",
			ConstLabels: labels,
		}),
		viewChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "vrd",
			Name:        "view_changes_total",
			Help:        "Number of view changes this replica has initiated.",
			ConstLabels: labels,
		}),
		quorumLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "vrd",
			Name:        "quorum_latency_seconds",
			Help:        "Time from broadcasting Prepare to reaching quorum on it.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		messagesByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "vrd",
			Name:        "messages_handled_total",
			Help:        "Messages handled by type.",
			ConstLabels: labels,
		}, []string{"type"}),
	}

	if reg != nil {
		reg.MustRegister(r.view, r.opNumber, r.commitNumber, r.viewChanges, r.quorumLatency, r.messagesByType)
	}
	return r
}

func (r *Replica) SetView(v uint64) {
	if r == nil {
		return
	}
	r.view.Set(float64(v))
}

func (r *Replica) SetOpNumber(n uint64) {
	if r == nil {
		return
	}
	r.opNumber.Set(float64(n))
}

func (r *Replica) SetCommitNumber(k uint64) {
	if r == nil {
		return
	}
	r.commitNumber.Set(float64(k))
}

func (r *Replica) IncViewChanges() {
	if r == nil {
		return
	}
	r.viewChanges.Inc()
}

func (r *Replica) ObserveQuorumLatency(d time.Duration) {
	if r == nil {
		return
	}
	r.quorumLatency.Observe(d.Seconds())
}

func (r *Replica) IncMessage(msgType string) {
	if r == nil {
		return
	}
	r.messagesByType.WithLabelValues(msgType).Inc()
}
