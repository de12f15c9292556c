// Package metrics exposes speedtest results as Prometheus metrics, either as
// a node_exporter textfile written after each run or over HTTP.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vesaa/speedtest2dynamodb/internal/models"
)

// Recorder owns a private registry so runs and tests never share state.
type Recorder struct {
	registry *prometheus.Registry

	ping          prometheus.Gauge
	download      prometheus.Gauge
	upload        prometheus.Gauge
	lastTimestamp prometheus.Gauge

	parseFailures *prometheus.CounterVec
	writeAttempts prometheus.Counter
	writeFailures prometheus.Counter
}

// NewRecorder registers all collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ping: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speedtest_ping_milliseconds",
			Help: "Ping latency of the last measurement in milliseconds (-1 if unparsed)",
		}),
		download: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speedtest_download_bits_per_second",
			Help: "Download throughput of the last measurement (-1 if unparsed)",
		}),
		upload: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speedtest_upload_bits_per_second",
			Help: "Upload throughput of the last measurement (-1 if unparsed)",
		}),
		lastTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speedtest_last_measurement_timestamp_seconds",
			Help: "Unix time of the last measurement",
		}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speedtest_parse_failures_total",
			Help: "Metrics that could not be parsed from the speedtest output",
		}, []string{"field"}),
		writeAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedtest_write_attempts_total",
			Help: "Store write attempts",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedtest_write_failures_total",
			Help: "Store write attempts that failed",
		}),
	}
	r.registry.MustRegister(
		r.ping, r.download, r.upload, r.lastTimestamp,
		r.parseFailures, r.writeAttempts, r.writeFailures,
	)
	return r
}

// ObserveMeasurement sets the gauges from m.
func (r *Recorder) ObserveMeasurement(m models.Measurement) {
	r.ping.Set(m.PingMS)
	r.download.Set(m.DownloadBitPerSecond)
	r.upload.Set(m.UploadBitPerSecond)
	r.lastTimestamp.Set(float64(m.Timestamp))
}

// ObserveParseFailure counts a field that fell back to the sentinel.
func (r *Recorder) ObserveParseFailure(field string) {
	r.parseFailures.WithLabelValues(field).Inc()
}

// ObserveWriteAttempt counts one store write attempt.
func (r *Recorder) ObserveWriteAttempt(err error) {
	r.writeAttempts.Inc()
	if err != nil {
		r.writeFailures.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile atomically writes the registry to path for node_exporter's
// textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
