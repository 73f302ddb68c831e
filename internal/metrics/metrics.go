// Package metrics defines the Prometheus collectors exposed by impulsed and
// impulse-actuator: dispatch-side task and result counters, and engine-side
// launch/shutdown gauges and histograms. Collectors are package variables
// registered once at init and served over promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values shared by the launch/shutdown result counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// RegisteredNodes tracks the current size of the Interface's Actuator
	// registry.
	RegisteredNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impulse_registered_nodes",
		Help: "Number of Actuator nodes currently registered with the Interface.",
	})

	// TasksPublishedTotal counts Tasks handed to the dispatch bus, labeled
	// by action (launch/shutdown).
	TasksPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impulse_tasks_published_total",
		Help: "Total number of tasks published to registered Actuators.",
	}, []string{"action"})

	// LaunchResultsTotal counts LaunchResult messages received by the
	// Interface, labeled by outcome.
	LaunchResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impulse_launch_results_total",
		Help: "Total number of launch results received from Actuators.",
	}, []string{"outcome"})

	// ShutdownResultsTotal counts ShutdownResult messages received by the
	// Interface, labeled by outcome.
	ShutdownResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impulse_shutdown_results_total",
		Help: "Total number of shutdown results received from Actuators.",
	}, []string{"outcome"})

	// EngineLaunchedVMs tracks the number of VMs an Engine currently
	// believes are running.
	EngineLaunchedVMs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impulse_engine_launched_vms",
		Help: "Number of microVMs currently tracked as launched by this Engine.",
	})

	// EngineLaunchDuration observes how long a full launch (config
	// materialization, image staging, supervisor start) takes.
	EngineLaunchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "impulse_engine_launch_duration_seconds",
		Help:    "Duration of a microVM launch, from request to supervised process start.",
		Buckets: prometheus.DefBuckets,
	})

	// EngineShutdownDuration observes how long a full shutdown (supervisor
	// stop, socket and directory cleanup) takes.
	EngineShutdownDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "impulse_engine_shutdown_duration_seconds",
		Help:    "Duration of a microVM shutdown, from request to directory cleanup.",
		Buckets: prometheus.DefBuckets,
	})

	// AddressPoolAssigned tracks how many addresses are currently checked
	// out of the Engine's AddressPool.
	AddressPoolAssigned = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impulse_address_pool_assigned",
		Help: "Number of addresses currently assigned out of the Engine's address pool.",
	})
)

func init() {
	prometheus.MustRegister(
		RegisteredNodes,
		TasksPublishedTotal,
		LaunchResultsTotal,
		ShutdownResultsTotal,
		EngineLaunchedVMs,
		EngineLaunchDuration,
		EngineShutdownDuration,
		AddressPoolAssigned,
	)

	// Pre-initialize label combinations so they appear in /metrics with
	// value 0 from startup.
	TasksPublishedTotal.WithLabelValues("launch")
	TasksPublishedTotal.WithLabelValues("shutdown")
	LaunchResultsTotal.WithLabelValues(OutcomeSuccess)
	LaunchResultsTotal.WithLabelValues(OutcomeFailure)
	ShutdownResultsTotal.WithLabelValues(OutcomeSuccess)
	ShutdownResultsTotal.WithLabelValues(OutcomeFailure)
}

// Handler returns the HTTP handler that serves the registered collectors at
// the configured /metrics path.
func Handler() http.Handler {
	return promhttp.Handler()
}
