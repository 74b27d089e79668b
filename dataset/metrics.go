package dataset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const dataSetLabel = "dataset"

var (
	warmTiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tilestream_warm_tiles",
		Help: "The number of tiles having content requested.",
	}, []string{
		dataSetLabel,
	})

	hotTiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tilestream_hot_tiles",
		Help: "The number of tiles having visual representation.",
	}, []string{
		dataSetLabel,
	})

	rendererErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_renderer_errors_total",
		Help: "The number of failed attempts to create visual representation of the tile.",
	}, []string{
		dataSetLabel,
	})

	corruptedPayloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_corrupted_payloads_total",
		Help: "The number of cached payloads not matching their digest.",
	}, []string{
		dataSetLabel,
	})

	staleCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_stale_completions_total",
		Help: "The number of fetch completions ignored because tile state changed in the meantime.",
	}, []string{
		dataSetLabel,
	})
)

func (ds *DataSet) instrumentCounts() {
	labels := prometheus.Labels{dataSetLabel: ds.config.Name}
	warmTiles.With(labels).Set(float64(len(ds.warm)))
	hotTiles.With(labels).Set(float64(len(ds.hot)))
}

func (ds *DataSet) instrumentRendererError() {
	rendererErrors.With(prometheus.Labels{dataSetLabel: ds.config.Name}).Inc()
}

func (ds *DataSet) instrumentStaleCompletion() {
	staleCompletions.With(prometheus.Labels{dataSetLabel: ds.config.Name}).Inc()
}

func (ds *DataSet) instrumentCorruptedPayload() {
	corruptedPayloads.With(prometheus.Labels{dataSetLabel: ds.config.Name}).Inc()
}
