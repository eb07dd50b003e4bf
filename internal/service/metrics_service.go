package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the counseling
// workflow. All record methods are nil-safe so callers never need to guard.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	matchTotal      *prometheus.CounterVec
	bookingConflict prometheus.Counter
	bookingTotal    prometheus.Counter
	transitionTotal *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec
}

// NewMetricsService registers the service's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	matchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "violation_match_total",
		Help: "Match outcomes by type (exact, keyword, category, manual, none)",
	}, []string{"match_type"})

	bookingConflict := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_conflicts_total",
		Help: "Slot booking attempts rejected because the slot was taken",
	})

	bookingTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookings_total",
		Help: "Successful slot bookings",
	})

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_transitions_total",
		Help: "Reservation status transitions applied",
	}, []string{"to"})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, matchTotal, bookingConflict, bookingTotal, transitionTotal, dbQueryDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		matchTotal:      matchTotal,
		bookingConflict: bookingConflict,
		bookingTotal:    bookingTotal,
		transitionTotal: transitionTotal,
		dbQueryDuration: dbQueryDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request timing and totals.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordMatch counts a matcher outcome by type.
func (m *MetricsService) RecordMatch(matchType string) {
	if m == nil {
		return
	}
	m.matchTotal.WithLabelValues(matchType).Inc()
}

// RecordBooking counts a booking attempt outcome.
func (m *MetricsService) RecordBooking(conflict bool) {
	if m == nil {
		return
	}
	if conflict {
		m.bookingConflict.Inc()
		return
	}
	m.bookingTotal.Inc()
}

// RecordTransition counts an applied reservation transition.
func (m *MetricsService) RecordTransition(to string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(to).Inc()
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}
