// Package metrics exposes engine activity as Prometheus series.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sentinelflow/internal/risk"
)

type Recorder struct {
	ingested   prometheus.Counter
	created    prometheus.Counter
	alerts     *prometheus.CounterVec
	riskScore  *prometheus.GaugeVec
	latency    prometheus.Histogram
	dropped    prometheus.Counter
	evicted    prometheus.Counter
	nodesTotal prometheus.GaugeFunc

	mu   sync.Mutex
	seen map[string]uint64
}

// NewRecorder registers all series on reg. nodeCount backs the node gauge.
func NewRecorder(reg prometheus.Registerer, nodeCount func() int) *Recorder {
	r := &Recorder{
		seen: map[string]uint64{},
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_samples_ingested_total",
			Help: "Samples accepted by the risk engine.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_nodes_created_total",
			Help: "Ledgers created on first contact with an agent.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_alerts_total",
			Help: "Detection rules fired, by rule.",
		}, []string{"rule"}),
		riskScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_node_risk_score",
			Help: "Current risk score per agent.",
		}, []string{"agent_id"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_ingest_duration_seconds",
			Help:    "Time spent handling one ingest request.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_dispatch_dropped_total",
			Help: "Alert events dropped because the dispatch queue was full.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_nodes_evicted_total",
			Help: "Ledgers removed by the idle-node policy.",
		}),
	}
	r.nodesTotal = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sentinel_nodes",
		Help: "Ledgers currently held in the registry.",
	}, func() float64 { return float64(nodeCount()) })

	reg.MustRegister(r.ingested, r.created, r.alerts, r.riskScore, r.latency, r.dropped, r.evicted, r.nodesTotal)
	return r
}

// NodeUpdated implements risk.Listener. Counters count every update; the
// per-agent risk gauge only moves forward in sequence, so a late update can
// neither roll it back nor bring back an evicted agent.
func (r *Recorder) NodeUpdated(u risk.Update) {
	id := u.Node.AgentID
	if u.Evicted {
		r.evicted.Inc()
		r.mu.Lock()
		defer r.mu.Unlock()
		if u.Seq > r.seen[id] {
			r.seen[id] = u.Seq
		}
		r.riskScore.DeleteLabelValues(id)
		return
	}

	r.ingested.Inc()
	if u.First {
		r.created.Inc()
	}
	for _, rule := range u.Verdict.Fired {
		r.alerts.WithLabelValues(string(rule)).Inc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if u.Seq <= r.seen[id] {
		return
	}
	r.seen[id] = u.Seq
	r.riskScore.WithLabelValues(id).Set(u.Node.RiskScore)
}

func (r *Recorder) ObserveIngest(d time.Duration) { r.latency.Observe(d.Seconds()) }

func (r *Recorder) DispatchDropped() { r.dropped.Inc() }
