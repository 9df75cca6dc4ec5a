package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkengine_http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linkengine_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// AccessDenials counts denied link authorizations by reason
	AccessDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkengine_access_denials_total",
		Help: "Denied link authorizations by reason",
	}, []string{"reason"})

	// LinksIssued counts issued access links
	LinksIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkengine_links_issued_total",
		Help: "Access links issued",
	})

	// ImpressionsCounted counts deduplicated impressions that were
	// accepted
	ImpressionsCounted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkengine_impressions_counted_total",
		Help: "Impressions accepted after daily dedup",
	})
)

// MetricsMiddleware records request count and latency per route
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
