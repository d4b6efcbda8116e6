package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zombor/receipt-splitter/internal/receipt"
)

var (
	// Pipeline metrics
	StagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_splitter_stage_total",
			Help: "Total number of extraction stage results",
		},
		[]string{"stage", "result"},
	)

	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_splitter_extractions_total",
			Help: "Total number of extractions by outcome",
		},
		[]string{"outcome"},
	)

	// Upload metrics
	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "receipt_splitter_upload_bytes",
			Help:    "Size of uploaded receipt files in bytes",
			Buckets: prometheus.ExponentialBuckets(64<<10, 2, 10),
		},
	)
)

// Recorder reports extraction results to the package collectors
type Recorder struct{}

func (Recorder) ObserveStage(stage receipt.Stage, result string) {
	StagesTotal.WithLabelValues(string(stage), result).Inc()
}

func (Recorder) ObserveOutcome(outcome receipt.Outcome) {
	ExtractionsTotal.WithLabelValues(string(outcome)).Inc()
}

// ObserveUpload records the size of an uploaded file
func ObserveUpload(size int) {
	UploadBytes.Observe(float64(size))
}
