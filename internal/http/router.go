// Package httpapi wires the HTTP control surface (Gin) to the polling
// engine and the persistence layer. The surface is deliberately small: a
// manual worker start, a status snapshot, a paginated referral listing,
// health, and metrics.
//
// Middleware ordering is RequestID → Logger → Recovery → Metrics so panics
// and errors carry the correlation ID and land in the access log.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/carebridge/referral-watcher/internal/http/handlers"
	"github.com/carebridge/referral-watcher/internal/http/middleware"
)

// RegisterRoutes attaches all middleware and endpoints to the Gin engine.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, worker handlers.Worker) {
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/worker/start", handlers.StartWorker(worker))
	r.GET("/worker/status", handlers.WorkerStatus(worker))
	r.GET("/referrals", handlers.ListReferrals(db))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
}
