package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"neon/internal/domain/leave"
)

// Collector owns a private Prometheus registry with HTTP, cache and leave
// workflow series.
type Collector struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	submitted       *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	accrued         *prometheus.CounterVec

	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64
}

func New() *Collector {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pending_count_cache_lookups_total",
		Help: "Pending-count cache lookups by result",
	}, []string{"result"})

	submitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_requests_submitted_total",
		Help: "Leave requests submitted",
	}, []string{"leave_type", "loss_of_pay"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_request_transitions_total",
		Help: "Leave requests leaving Pending, by target status",
	}, []string{"status"})

	accrued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_accrual_credits_total",
		Help: "Employee balance lines credited by the accrual job",
	}, []string{"leave_type"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLookups, submitted, transitions, accrued, goroutines)

	return &Collector{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLookups:    cacheLookups,
		submitted:       submitted,
		transitions:     transitions,
		accrued:         accrued,
	}
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return c.handler
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Record(method, route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	label := fmt.Sprintf("%d", status)
	c.requestDuration.WithLabelValues(method, route, label).Observe(duration.Seconds())
	c.requestTotal.WithLabelValues(method, route, label).Inc()

	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == http.StatusTooManyRequests {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) RecordCacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *Collector) RequestSubmitted(leaveType string, lossOfPay bool) {
	if c == nil {
		return
	}
	c.submitted.WithLabelValues(leaveType, fmt.Sprintf("%t", lossOfPay)).Inc()
}

func (c *Collector) RequestTransitioned(to leave.Status) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(string(to)).Inc()
}

func (c *Collector) AccrualCredited(leaveType string, employees int) {
	if c == nil {
		return
	}
	c.accrued.WithLabelValues(leaveType).Add(float64(employees))
}

// Snapshot is a cheap summary for the readiness endpoint.
func (c *Collector) Snapshot() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":    total,
		"errorsTotal":      errs,
		"rateLimitedTotal": limited,
		"avgDurationMs":    avg,
	}
}
