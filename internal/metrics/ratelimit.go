package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type limiterMetrics struct {
	denied   prometheus.Counter
	capacity prometheus.Counter
}

func newLimiterMetrics(f promauto.Factory) limiterMetrics {
	return limiterMetrics{
		denied: f.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the rate limiter",
		}),
		capacity: f.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total requests from new clients rejected because the limiter was tracking its maximum",
		}),
	}
}

func (m *ServerMetrics) IncRateLimitDenied()   { m.limiter.denied.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.limiter.capacity.Inc() }
