package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Construct once via
// New, pass into the components that record.
type Metrics struct {
	pipelineOutcomes   *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	rateLimitRejects   *prometheus.CounterVec
	auditDropped       prometheus.Counter
	verifyDuration     prometheus.Histogram
	httpRequestsTotal  *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates and registers the gateway collectors. Double registration
// (tests constructing twice against the default registry) is tolerated.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		pipelineOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_pipeline_outcomes_total",
			Help: "Pipeline executions by auth method and outcome",
		}, []string{"method", "outcome"}),

		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rejections_total",
			Help: "Pipeline rejections by error code",
		}, []string{"code"}),

		rateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limit_rejects_total",
			Help: "Requests rejected by the rate limiter, by key class",
		}, []string{"class"}),

		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_events_dropped_total",
			Help: "Security events dropped due to a full audit buffer",
		}),

		verifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_token_verify_duration_seconds",
			Help:    "Latency of provider token verification",
			Buckets: prometheus.DefBuckets,
		}),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed",
		}, []string{"method", "path", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	collectors := []prometheus.Collector{
		m.pipelineOutcomes, m.rejections, m.rateLimitRejects,
		m.auditDropped, m.verifyDuration, m.httpRequestsTotal, m.httpDuration,
	}
	for _, c := range collectors {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// PipelineOutcome records one pipeline execution.
func (m *Metrics) PipelineOutcome(method, outcome string) {
	if m == nil {
		return
	}
	m.pipelineOutcomes.WithLabelValues(method, outcome).Inc()
}

// Rejection records a rejection by error code.
func (m *Metrics) Rejection(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

// RateLimitReject records a limiter rejection for a key class
// (authenticated, anonymous, tenant).
func (m *Metrics) RateLimitReject(class string) {
	if m == nil {
		return
	}
	m.rateLimitRejects.WithLabelValues(class).Inc()
}

// AuditDropped records a dropped security event.
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// TokenVerifyDuration records one provider verification round-trip.
func (m *Metrics) TokenVerifyDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.verifyDuration.Observe(d.Seconds())
}

// HTTPMiddleware instruments request counts and latency.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(method, r.URL.Path).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(method, r.URL.Path, strconv.Itoa(status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}
