package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "cdcr"

// Coreference pipeline metrics.
var (
	DetectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Mention detection duration per document in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
		[]string{"detector", "status"},
	)

	ClusteringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clustering_duration_seconds",
			Help:      "Agglomerative clustering duration per batch in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"metric"},
	)

	BatchMentions = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_mentions",
			Help:      "Number of mentions per clustered batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	BatchClusters = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_clusters",
			Help:      "Number of clusters per clustered batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	FilterQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_queries_total",
			Help:      "Total number of filter queries",
		},
		[]string{"field", "status"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers detection, clustering and filter metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(DetectionDuration)
	prometheus.MustRegister(ClusteringDuration)
	prometheus.MustRegister(BatchMentions)
	prometheus.MustRegister(BatchClusters)
	prometheus.MustRegister(FilterQueriesTotal)
	pipelineMetricsRegistered = true
}
