package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/globetrotter/realtime"
)

// Metrics holds the OpenTelemetry instruments used by the hub.
type Metrics struct {
	// Session metrics
	ActiveSessions metric.Int64UpDownCounter
	SessionsPruned metric.Int64Counter

	// Room metrics
	RoomJoinsTotal metric.Int64Counter

	// Delivery metrics
	BroadcastsTotal   metric.Int64Counter
	DeliveriesTotal   metric.Int64Counter
	FramesDropped     metric.Int64Counter
	FramesReceived    metric.Int64Counter
	BridgeEventsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments bind to whatever meter provider is global at first call; before
// InitTelemetry runs that is the no-op provider.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.ActiveSessions, _ = meter.Int64UpDownCounter(
		"realtime.sessions.active",
		metric.WithDescription("Number of open WebSocket sessions"),
		metric.WithUnit("{session}"),
	)

	m.SessionsPruned, _ = meter.Int64Counter(
		"realtime.sessions.pruned.total",
		metric.WithDescription("Sessions removed after a failed send"),
		metric.WithUnit("{session}"),
	)

	m.RoomJoinsTotal, _ = meter.Int64Counter(
		"realtime.rooms.joins.total",
		metric.WithDescription("Total number of room joins"),
		metric.WithUnit("{join}"),
	)

	m.BroadcastsTotal, _ = meter.Int64Counter(
		"realtime.broadcasts.total",
		metric.WithDescription("Total number of broadcast calls"),
		metric.WithUnit("{broadcast}"),
	)

	m.DeliveriesTotal, _ = meter.Int64Counter(
		"realtime.deliveries.total",
		metric.WithDescription("Frames successfully written to sessions"),
		metric.WithUnit("{frame}"),
	)

	m.FramesReceived, _ = meter.Int64Counter(
		"realtime.frames.received.total",
		metric.WithDescription("Frames read from clients"),
		metric.WithUnit("{frame}"),
	)

	m.FramesDropped, _ = meter.Int64Counter(
		"realtime.frames.dropped.total",
		metric.WithDescription("Malformed client frames that were dropped"),
		metric.WithUnit("{frame}"),
	)

	m.BridgeEventsTotal, _ = meter.Int64Counter(
		"realtime.bridge.events.total",
		metric.WithDescription("Events relayed from the Redis bridge"),
		metric.WithUnit("{event}"),
	)

	return m
}
