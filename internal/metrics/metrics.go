// metrics содержит прикладные prometheus-коллекторы todo-service.
// Коллекторы регистрируются в prometheus.DefaultRegisterer и отдаются через /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "todo"

var (
	// HTTPRequests — число обработанных запросов по шаблону маршрута.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Number of HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "code"})

	// HTTPDuration — длительность обработки запросов.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// TodoCache — обращения к кэшу списков задач.
	TodoCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "todo_lookups_total",
		Help:      "Todo list cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	// Refresh — исходы обновления access-токена по refresh-токену.
	Refresh = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "refresh_total",
		Help:      "Access token refresh attempts by outcome (ok, rejected, error).",
	}, []string{"outcome"})
)

// Значения меток.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"

	RefreshOK       = "ok"
	RefreshRejected = "rejected"
	RefreshError    = "error"
)
