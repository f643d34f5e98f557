package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/upiwallet"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Session metrics
	SessionLogins  metric.Int64Counter
	SessionLogouts metric.Int64Counter
	SessionExpired metric.Int64Counter

	// Realtime balance channel metrics
	RealtimeConnects   metric.Int64Counter
	RealtimeReconnects metric.Int64Counter
	RealtimeUpdates    metric.Int64Counter

	// Transfer flow metrics
	TransferOutcomes metric.Int64Counter

	// History metrics
	HistoryRefreshes metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.SessionLogins, _ = meter.Int64Counter(
		"wallet.session.logins",
		metric.WithDescription("Total number of sessions adopted by login"),
		metric.WithUnit("{session}"),
	)

	m.SessionLogouts, _ = meter.Int64Counter(
		"wallet.session.logouts",
		metric.WithDescription("Total number of sessions ended by logout"),
		metric.WithUnit("{session}"),
	)

	m.SessionExpired, _ = meter.Int64Counter(
		"wallet.session.expired",
		metric.WithDescription("Total number of sessions ended by expiry"),
		metric.WithUnit("{session}"),
	)

	m.RealtimeConnects, _ = meter.Int64Counter(
		"wallet.realtime.connects",
		metric.WithDescription("Total number of balance channel transports opened"),
		metric.WithUnit("{connection}"),
	)

	m.RealtimeReconnects, _ = meter.Int64Counter(
		"wallet.realtime.reconnects",
		metric.WithDescription("Total number of transport-level reconnects"),
		metric.WithUnit("{connection}"),
	)

	m.RealtimeUpdates, _ = meter.Int64Counter(
		"wallet.realtime.updates",
		metric.WithDescription("Total number of balance updates delivered"),
		metric.WithUnit("{update}"),
	)

	m.TransferOutcomes, _ = meter.Int64Counter(
		"wallet.transfer.outcomes",
		metric.WithDescription("Transfer flow outcomes by result"),
		metric.WithUnit("{transfer}"),
	)

	m.HistoryRefreshes, _ = meter.Int64Counter(
		"wallet.history.refreshes",
		metric.WithDescription("Total number of transaction history refreshes"),
		metric.WithUnit("{refresh}"),
	)

	return m
}
