package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReplicationCollector bundles Prometheus metrics for the snapshot send path
// and exposes them over HTTP.
type ReplicationCollector struct {
	gatherer prometheus.Gatherer

	Snapshots         *prometheus.CounterVec
	SnapshotBytes     *prometheus.CounterVec
	SnapshotsSkipped  prometheus.Counter
	RPCQueued         prometheus.Counter
	ConnectedClients  prometheus.Gauge
	SerializeDuration prometheus.Histogram
}

// NewReplicationCollector registers replication metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewReplicationCollector(reg prometheus.Registerer) (*ReplicationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	snapshots, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replication_snapshots_total",
		Help: "Snapshots handed to client transports, labeled by encoding.",
	}, []string{"encoding"}), "replication_snapshots_total")
	if err != nil {
		return nil, err
	}
	bytes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replication_snapshot_bytes_total",
		Help: "Serialized snapshot bytes handed to client transports, labeled by encoding.",
	}, []string{"encoding"}), "replication_snapshot_bytes_total")
	if err != nil {
		return nil, err
	}
	skipped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replication_snapshots_skipped_total",
		Help: "Due clients for which the writer had nothing to send.",
	}), "replication_snapshots_skipped_total")
	if err != nil {
		return nil, err
	}
	queued, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replication_rpc_queued_total",
		Help: "Remote calls queued for delivery, counted once per receiving client.",
	}), "replication_rpc_queued_total")
	if err != nil {
		return nil, err
	}
	clients, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replication_connected_clients",
		Help: "Current number of connected clients.",
	}), "replication_connected_clients")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "replication_serialize_duration_seconds",
		Help:    "Time spent serializing snapshots for all due clients in one tick.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	}), "replication_serialize_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &ReplicationCollector{
		gatherer:          gatherer,
		Snapshots:         snapshots,
		SnapshotBytes:     bytes,
		SnapshotsSkipped:  skipped,
		RPCQueued:         queued,
		ConnectedClients:  clients,
		SerializeDuration: duration,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ReplicationCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *ReplicationCollector) SnapshotSent(encoding string, size int) {
	if c == nil {
		return
	}
	c.Snapshots.WithLabelValues(encoding).Inc()
	c.SnapshotBytes.WithLabelValues(encoding).Add(float64(size))
}

func (c *ReplicationCollector) SnapshotSkipped() {
	if c == nil {
		return
	}
	c.SnapshotsSkipped.Inc()
}

func (c *ReplicationCollector) RemoteCallsQueued(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.RPCQueued.Add(float64(n))
}

func (c *ReplicationCollector) ClientsConnected(n int) {
	if c == nil {
		return
	}
	c.ConnectedClients.Set(float64(n))
}

func (c *ReplicationCollector) SerializeTook(d time.Duration) {
	if c == nil {
		return
	}
	c.SerializeDuration.Observe(d.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
