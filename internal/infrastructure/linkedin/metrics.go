package linkedin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metric names.
const (
	MetricRequestsTotal          = "campaignlens_linkedin_requests_total"
	MetricRequestDurationSeconds = "campaignlens_linkedin_request_duration_seconds"
	MetricCacheTotal             = "campaignlens_linkedin_cache_total"
	MetricRateLimitedTotal       = "campaignlens_linkedin_rate_limited_total"
)

// Metrics holds the client's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	cache       *prometheus.CounterVec
	limited     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRequestsTotal,
			Help: "LinkedIn API requests by operation and outcome.",
		}, []string{"operation", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRequestDurationSeconds,
			Help:    "LinkedIn API request latency including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCacheTotal,
			Help: "LinkedIn GET cache lookups by result.",
		}, []string{"result"}),
		limited: f.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitedTotal,
			Help: "Requests rejected by the local hourly budget.",
		}),
	}
}

func (m *Metrics) observe(op, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) cacheResult(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) rateLimited() {
	if m == nil {
		return
	}
	m.limited.Inc()
}
