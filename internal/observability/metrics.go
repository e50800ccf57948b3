package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ride lifecycle counters.
var (
	RidesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ecoride",
		Name:      "rides_created_total",
		Help:      "Rides created by customers.",
	})
	RidesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ecoride",
		Name:      "rides_accepted_total",
		Help:      "Rides accepted by drivers.",
	})
	RidesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ecoride",
		Name:      "rides_completed_total",
		Help:      "Rides that reached COMPLETED.",
	})
	RidesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ecoride",
		Name:      "rides_cancelled_total",
		Help:      "Rides cancelled by a participant.",
	})
	RidesTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ecoride",
		Name:      "rides_timeout_total",
		Help:      "Rides that exhausted the dispatch retry budget.",
	})
)

// Realtime gauges.
var (
	OnDutyDrivers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecoride",
		Name:      "on_duty_drivers",
		Help:      "Drivers currently in the presence registry.",
	})
	ActiveDispatchers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecoride",
		Name:      "active_dispatch_loops",
		Help:      "Dispatch controllers currently running.",
	})
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecoride",
		Name:      "websocket_connections",
		Help:      "Open websocket sessions.",
	})
)
