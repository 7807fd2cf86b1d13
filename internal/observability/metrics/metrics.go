package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "energy_gauge_"

	resultSuccess = "success"
	resultError   = "error"
	resultStale   = "stale"
)

var (
	registerOnce sync.Once

	refreshTotal   *prometheus.CounterVec
	refreshLatency *prometheus.HistogramVec

	hassRequests *prometheus.CounterVec
	hassLatency  *prometheus.HistogramVec

	gaugeValue  *prometheus.GaugeVec
	gaugeStatus *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	streamClients prometheus.Gauge
	publishTotal  *prometheus.CounterVec
)

// Init registers collectors and, when db is set, recorder-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		refreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "collection_refresh_total",
				Help: "Total energy collection refreshes by key and result",
			},
			[]string{"collection", "result"},
		)
		refreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "collection_refresh_latency_seconds",
				Help:    "Energy collection refresh latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "result"},
		)

		hassRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "hass_requests_total",
				Help: "Total Home Assistant websocket commands by type and result",
			},
			[]string{"command", "result"},
		)
		hassLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "hass_request_latency_seconds",
				Help:    "Home Assistant websocket command latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		)

		gaugeValue = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "value",
				Help: "Latest gauge value by card",
			},
			[]string{"card", "gauge"},
		)
		gaugeStatus = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_total",
				Help: "Total computed readings by card and status",
			},
			[]string{"card", "status"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total gauge report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Gauge report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		streamClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stream_clients",
				Help: "Connected reading stream clients",
			},
		)
		publishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_total",
				Help: "Total reading publications by sink and result",
			},
			[]string{"sink", "result"},
		)

		prometheus.MustRegister(
			refreshTotal,
			refreshLatency,
			hassRequests,
			hassLatency,
			gaugeValue,
			gaugeStatus,
			exportTotal,
			exportLatency,
			streamClients,
			publishTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveRefresh records a collection refresh.
func ObserveRefresh(collection, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if refreshTotal != nil {
		refreshTotal.WithLabelValues(collection, result).Inc()
	}
	if refreshLatency != nil {
		refreshLatency.WithLabelValues(collection, result).Observe(duration.Seconds())
	}
}

// ObserveHassRequest records a websocket command round trip.
func ObserveHassRequest(command, result string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if hassRequests != nil {
		hassRequests.WithLabelValues(command, result).Inc()
	}
	if hassLatency != nil {
		hassLatency.WithLabelValues(command).Observe(duration.Seconds())
	}
}

// SetGaugeValue stores the latest value of a card.
func SetGaugeValue(card, gauge string, value float64) {
	if gaugeValue != nil {
		gaugeValue.WithLabelValues(card, gauge).Set(value)
	}
}

// IncReading counts a computed reading.
func IncReading(card, status string) {
	if status == "" {
		status = "unknown"
	}
	if gaugeStatus != nil {
		gaugeStatus.WithLabelValues(card, status).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// AddStreamClients adjusts the connected stream client gauge.
func AddStreamClients(delta int) {
	if streamClients != nil {
		streamClients.Add(float64(delta))
	}
}

// IncPublish counts a reading publication.
func IncPublish(sink, result string) {
	if sink == "" {
		sink = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if publishTotal != nil {
		publishTotal.WithLabelValues(sink, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultStale   = resultStale
)
