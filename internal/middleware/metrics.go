package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPMetrics records handled requests.
type HTTPMetrics interface {
	ObserveHTTP(method, route string, status int, duration time.Duration)
}

// Metrics records every request by its route template, so that path
// parameters do not blow up label cardinality.
func Metrics(m HTTPMetrics) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		start := time.Now()

		gctx.Next()

		route := gctx.FullPath()
		if route == "" {
			route = "unmatched"
		}

		m.ObserveHTTP(gctx.Request.Method, route, gctx.Writer.Status(), time.Since(start))
	}
}
