package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// LoginAttempts counts logins by outcome: ok, failed, rate_limited.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	// EnrollmentSubmissions counts enrollment submissions by outcome.
	EnrollmentSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_enrollment_submissions_total",
		Help: "Enrollment submissions by outcome.",
	}, []string{"outcome"})
)

// Middleware counts finished requests by route template, so path
// parameters do not explode the label space.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
