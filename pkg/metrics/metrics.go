// Package metrics exposes Prometheus gauges for cluster, resource, and
// scheduler status. Grounded on pkg/metrics/metrics.go's gauge-vec
// declarations and registration pattern, relabeled from the teacher's
// node/service/task domain to the DNS-cluster domain.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ClusterStatus is 1 when the cluster's aggregate status equals
	// status_label, 0 otherwise, one series per possible status value.
	ClusterStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "appcluster_cluster_status",
			Help: "Current aggregate cluster status (1 for the active status label)",
		},
		[]string{"status"},
	)

	// ResourceStatus reports the aggregate status of each resource.
	ResourceStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "appcluster_resource_status",
			Help: "Current aggregate status of a resource (1 for the active status label)",
		},
		[]string{"resource", "status"},
	)

	// NodeDnsStatus reports the per-(resource,node) DNS role.
	NodeDnsStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "appcluster_node_dns_status",
			Help: "Current DNS-observed role status of a resource node (1 for the active status label)",
		},
		[]string{"resource", "node", "status"},
	)

	// SchedulerState reports each scheduler's state machine position.
	SchedulerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "appcluster_scheduler_state",
			Help: "Current state of a synchronizer scheduler (1 for the active state label)",
		},
		[]string{"resource", "local_node", "remote_node", "state"},
	)

	// DnsLookupDuration observes how long each lookup attempt took.
	DnsLookupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appcluster_dns_lookup_duration_seconds",
			Help:    "Duration of a single (hostname, nameserver) DNS lookup",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SynchronizationsTotal counts completed synchronize/test runs by
	// mode and resulting status.
	SynchronizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appcluster_synchronizations_total",
			Help: "Total number of completed synchronize/test runs",
		},
		[]string{"mode", "status"},
	)
)

func init() {
	prometheus.MustRegister(ClusterStatus)
	prometheus.MustRegister(ResourceStatus)
	prometheus.MustRegister(NodeDnsStatus)
	prometheus.MustRegister(SchedulerState)
	prometheus.MustRegister(DnsLookupDuration)
	prometheus.MustRegister(SynchronizationsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetStatusGauge sets exactly one label value of a GaugeVec to 1 and
// every other value in allValues to 0, the pattern every
// *Status/*State gauge above uses to represent an enum as a vector.
func SetStatusGauge(vec *prometheus.GaugeVec, labels prometheus.Labels, active string, allValues []string) {
	SetEnumGauge(vec, labels, "status", active, allValues)
}

// SetEnumGauge is SetStatusGauge generalized to an arbitrary enum label
// name, for gauges like SchedulerState whose varying label isn't "status".
func SetEnumGauge(vec *prometheus.GaugeVec, labels prometheus.Labels, labelName, active string, allValues []string) {
	for _, v := range allValues {
		l := prometheus.Labels{}
		for k, val := range labels {
			l[k] = val
		}
		l[labelName] = v
		if v == active {
			vec.With(l).Set(1)
		} else {
			vec.With(l).Set(0)
		}
	}
}
