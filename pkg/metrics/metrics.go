// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "emuctl"

var Registry = prometheus.NewRegistry()

var (
	RelayCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_exec_total",
		Help:      "Commands relayed into nodes, by transport result.",
	}, []string{"result"})

	CaptureFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_frames_total",
		Help:      "Capture frames broadcast to subscribers.",
	})

	CaptureSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "capture_subscribers",
		Help:      "Currently attached capture subscribers.",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests, by method and envelope outcome.",
	}, []string{"method", "ok"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RelayCalls,
		CaptureFrames,
		CaptureSubscribers,
		HTTPRequests,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
