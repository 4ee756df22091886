package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nodewiring"

var (
	TrustCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trust_cycles_total",
			Help:      "Trust worker cycles by outcome",
		},
		[]string{"outcome"},
	)

	TrustRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trust_rotations_total",
			Help:      "Client certificate rotations by status",
		},
		[]string{"status"},
	)

	TrustRotationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trust_rotation_duration_seconds",
			Help:      "Duration of client certificate rotations",
			Buckets:   prometheus.DefBuckets,
		},
	)

	TrustCertificateExpiry = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trust_certificate_expiry_timestamp_seconds",
			Help:      "NotAfter of the current client certificate",
		},
	)

	DiscoveryEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_events_total",
			Help:      "Watch events handled by action",
		},
		[]string{"action"},
	)

	DiscoveryResyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_resyncs_total",
			Help:      "Full enumerations of the discovery tree by status",
		},
		[]string{"status"},
	)

	DiscoveryAdvertiseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_advertise_failures_total",
			Help:      "Failed own-endpoint advertisements",
		},
	)

	DiscoveryWatchIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovery_watch_index",
			Help:      "Highest etcd modifiedIndex seen by the watcher",
		},
	)

	RegistryNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_nodes",
			Help:      "Nodes known to the registry",
		},
	)

	RegistryEndpoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_endpoints",
			Help:      "Wiring endpoints known to the registry",
		},
	)
)

func all() []prometheus.Collector {
	return []prometheus.Collector{
		TrustCyclesTotal,
		TrustRotationsTotal,
		TrustRotationDuration,
		TrustCertificateExpiry,
		DiscoveryEventsTotal,
		DiscoveryResyncsTotal,
		DiscoveryAdvertiseFailuresTotal,
		DiscoveryWatchIndex,
		RegistryNodes,
		RegistryEndpoints,
	}
}

func RecordTrustCycle(outcome string) {
	TrustCyclesTotal.WithLabelValues(outcome).Inc()
}

func RecordRotation(status string, seconds float64) {
	TrustRotationsTotal.WithLabelValues(status).Inc()
	TrustRotationDuration.Observe(seconds)
}

func RecordDiscoveryEvent(action string) {
	DiscoveryEventsTotal.WithLabelValues(action).Inc()
}

func RecordResync(status string) {
	DiscoveryResyncsTotal.WithLabelValues(status).Inc()
}

func SetRegistrySize(nodes, endpoints int) {
	RegistryNodes.Set(float64(nodes))
	RegistryEndpoints.Set(float64(endpoints))
}
