// Package metrics exposes engine activity as Prometheus metrics.
//
// Counters:
//   - qtt_routes_loaded_total / qtt_route_load_failures_total
//   - qtt_ticks_total, qtt_hud_updates_total
//   - qtt_controls_total{action}
//   - qtt_edge_warnings_total, qtt_timeline_conflicts_total
//
// Gauges: qtt_route_segments, qtt_route_duration_seconds, qtt_playback_elapsed_seconds.
//
// Histogram: qtt_http_request_duration_seconds{method,route,status}.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector Prometheus metrics for one engine instance.
type Collector struct {
	routesLoaded      prometheus.Counter
	routeLoadFailures prometheus.Counter
	ticks             prometheus.Counter
	hudUpdates        prometheus.Counter
	controls          *prometheus.CounterVec
	edgeWarnings      prometheus.Counter
	timelineConflicts prometheus.Counter

	routeSegments  prometheus.Gauge
	routeDuration  prometheus.Gauge
	playbackCursor prometheus.Gauge

	httpDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses a fresh private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		routesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qtt_routes_loaded_total",
			Help: "Total number of routes built and swapped in",
		}),
		routeLoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qtt_route_load_failures_total",
			Help: "Total number of rejected spec/plan loads",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qtt_ticks_total",
			Help: "Total number of playback ticks",
		}),
		hudUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qtt_hud_updates_total",
			Help: "Total number of throttled HUD publications",
		}),
		controls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qtt_controls_total",
			Help: "Playback control actions by action",
		}, []string{"action"}),
		edgeWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qtt_edge_warnings_total",
			Help: "Kinematic warnings attached to loaded route segments",
		}),
		timelineConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qtt_timeline_conflicts_total",
			Help: "Conflicting absolute-time seeds seen during timeline inference",
		}),
		routeSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qtt_route_segments",
			Help: "Number of segments in the current route",
		}),
		routeDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qtt_route_duration_seconds",
			Help: "World-time duration of the current route",
		}),
		playbackCursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qtt_playback_elapsed_seconds",
			Help: "Current playback cursor in world seconds",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qtt_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}

	reg.MustRegister(
		c.routesLoaded,
		c.routeLoadFailures,
		c.ticks,
		c.hudUpdates,
		c.controls,
		c.edgeWarnings,
		c.timelineConflicts,
		c.routeSegments,
		c.routeDuration,
		c.playbackCursor,
		c.httpDuration,
	)
	return c
}

// RecordRouteLoaded records a successful route swap.
func (c *Collector) RecordRouteLoaded(segments int, durationS float64, warnings, conflicts int) {
	c.routesLoaded.Inc()
	c.routeSegments.Set(float64(segments))
	c.routeDuration.Set(durationS)
	c.edgeWarnings.Add(float64(warnings))
	c.timelineConflicts.Add(float64(conflicts))
}

func (c *Collector) RecordLoadFailure() { c.routeLoadFailures.Inc() }

// RecordTick records one playback tick and the cursor after it.
func (c *Collector) RecordTick(elapsedS float64, hudUpdated bool) {
	c.ticks.Inc()
	c.playbackCursor.Set(elapsedS)
	if hudUpdated {
		c.hudUpdates.Inc()
	}
}

func (c *Collector) RecordControl(action string) {
	c.controls.WithLabelValues(action).Inc()
}

func (c *Collector) ObserveHTTP(method, route string, status int, seconds float64) {
	c.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
