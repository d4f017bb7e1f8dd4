package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay metrics, registered on the default registry.
var (
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_open",
		Help: "Currently open websocket connections.",
	})

	RelayRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms_live",
		Help: "Rooms with at least one member.",
	})

	RelayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_dispatched_total",
		Help: "Events fanned out to room members, by kind.",
	}, []string{"kind"})

	RelayDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_delivery_failures_total",
		Help: "Per-peer delivery failures during fan-out.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
