package content

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const resultLabel = "result"

var (
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_content_requests_total",
		Help: "The number of content loads, labeled by whether the entry existed already.",
	}, []string{
		resultLabel,
	})

	cacheFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_content_fetches_total",
		Help: "The number of finished content fetches, labeled by result.",
	}, []string{
		resultLabel,
	})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_content_evictions_total",
		Help: "The number of evicted content entries.",
	})

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_content_entries",
		Help: "The number of content entries held by all the caches.",
	})

	cacheFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "tilestream_content_fetch_seconds",
		Help: "The time taken to fetch and decode content.",
	})
)

func instrumentLoad(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequests.With(prometheus.Labels{resultLabel: result}).Inc()
}

func instrumentFetch(err error, seconds float64) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	cacheFetches.With(prometheus.Labels{resultLabel: result}).Inc()
	cacheFetchLatency.Observe(seconds)
}

func instrumentEviction() {
	cacheEvictions.Inc()
}
