package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK           = "ok"
	OutcomeRejected     = "rejected"
	OutcomeFault        = "fault"
	OutcomeNotConnected = "not_connected"
	OutcomeInvalid      = "invalid"
	OutcomeFailed       = "failed"
)

// Registry holds every collector of the process. It is separate from the
// default registry so tests and embedders control what is exposed.
var Registry = prometheus.NewRegistry()

var (
	// ConnectedChargers is the number of entries in the connection registry.
	ConnectedChargers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csms_connected_chargers",
			Help: "Number of charge points with a registered live connection.",
		},
	)

	InboundCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csms_inbound_calls_total",
			Help: "Inbound OCPP calls by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	RemoteCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csms_remote_commands_total",
			Help: "Remote commands sent to charge points by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	RemoteCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "csms_remote_command_duration_seconds",
			Help:    "Round trip time of remote commands that reached a charge point.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ConnectedChargers,
		InboundCalls,
		RemoteCommands,
		RemoteCommandDuration,
	)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
