package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolocator_events_total",
		Help: "Pipeline events by counter name",
	}, []string{"name"})
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolocator_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geolocator_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"route"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geolocator_cache_hits_total",
		Help: "Total result cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geolocator_cache_misses_total",
		Help: "Total result cache misses",
	})
)

func init() {
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
