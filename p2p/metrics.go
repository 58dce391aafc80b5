package p2p

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricMessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "messages_received_total",
		Help:      "Messages accepted on POST /message, per service.",
	}, []string{"role", "id"})

	metricLayersPeeled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "layers_peeled_total",
		Help:      "Layers successfully peeled by an onion router, by kind of next hop.",
	}, []string{"id", "next"})

	metricPeelFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "peel_failures_total",
		Help:      "Layers an onion router failed to peel, by error kind.",
	}, []string{"id", "kind"})

	metricDownstreamFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "downstream_failures_total",
		Help:      "Fire-and-forget forwards that did not reach the next hop.",
	}, []string{"id"})

	metricMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "messages_sent_total",
		Help:      "Onions sent by a user to an entry relay, by outcome.",
	}, []string{"id", "outcome"})

	metricRegistrations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "registry_registrations_total",
		Help:      "Node registrations accepted by the registry.",
	})
)

func init() {
	prometheus.MustRegister(
		metricMessagesReceived,
		metricLayersPeeled,
		metricPeelFailures,
		metricDownstreamFailures,
		metricMessagesSent,
		metricRegistrations,
	)
}

func idLabel(id int) string {
	return strconv.Itoa(id)
}

func kindLabel(err error) string {
	for _, kind := range []error{ErrDecryption, ErrAddressParse, ErrInsufficientNodes, ErrDownstreamDelivery} {
		if isKind(err, kind) {
			return errorCode(kind)
		}
	}
	return errorCode(nil)
}

func metricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
