// Package metrics exposes order engine and HTTP measurements to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/services"
)

const namespace = "solestore"

// Recorder implements services.Metrics on a dedicated Prometheus registry.
type Recorder struct {
	registry      *prometheus.Registry
	ordersCreated prometheus.Counter
	transitions   *prometheus.CounterVec
	reservations  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	verifications *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

var _ services.Metrics = (*Recorder)(nil)

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders placed.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by outcome.",
		}, []string{"from", "to", "result"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservations_total",
			Help:      "Stock reservation attempts by outcome.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Order notifications by kind and outcome.",
		}, []string{"kind", "result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verifications_total",
			Help:      "Service token verifications by outcome.",
		}, []string{"kind", "result", "reason"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	r.registry.MustRegister(
		r.ordersCreated,
		r.transitions,
		r.reservations,
		r.notifications,
		r.verifications,
		r.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) OrderCreated() { r.ordersCreated.Inc() }

func (r *Recorder) Transition(from, to domain.OrderStatus, result string) {
	r.transitions.WithLabelValues(string(from), string(to), result).Inc()
}

func (r *Recorder) StockReservation(result string) {
	r.reservations.WithLabelValues(result).Inc()
}

func (r *Recorder) Notification(kind services.NotificationKind, result string) {
	r.notifications.WithLabelValues(string(kind), result).Inc()
}

// Verification matches auth.VerificationRecorder.
func (r *Recorder) Verification(kind string, success bool, reason string) {
	result := "rejected"
	if success {
		result = "accepted"
	}
	r.verifications.WithLabelValues(kind, result, reason).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Middleware observes request latency labelled by the chi route pattern, so path parameters do
// not explode label cardinality.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.httpDuration.WithLabelValues(req.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
