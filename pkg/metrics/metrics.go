// Package metrics holds the prometheus collectors shared by the catalog,
// resolver and poster pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	DatasetLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinedex",
		Name:      "dataset_loads_total",
		Help:      "Dataset loads by kind and result.",
	}, []string{"kind", "result"})

	DatasetLoadSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cinedex",
		Name:      "dataset_load_seconds",
		Help:      "Time spent fetching and parsing a dataset.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	ViewingOrders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinedex",
		Name:      "viewing_orders_total",
		Help:      "Viewing orders computed, by strategy.",
	}, []string{"strategy"})

	PosterConversions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinedex",
		Name:      "poster_conversions_total",
		Help:      "Poster requests by result (hit, converted, rejected, error).",
	}, []string{"result"})

	Reloads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cinedex",
		Name:      "reloads_total",
		Help:      "Full catalog reloads.",
	})
)

// Registry is the registry served on /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		DatasetLoads,
		DatasetLoadSeconds,
		ViewingOrders,
		PosterConversions,
		Reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
