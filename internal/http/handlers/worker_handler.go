// Worker control endpoints.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carebridge/referral-watcher/internal/poller"
)

// Worker is the slice of the polling engine the control surface needs.
type Worker interface {
	// Start establishes the portal session on demand.
	Start(ctx context.Context) error
	// Status returns a snapshot of the worker state.
	Status() poller.WorkerContext
}

// StartWorker handles POST /worker/start: (re)establishes the portal
// session manually. Returns 200 with a status message when the session is
// up, 500 with the error otherwise.
func StartWorker(w Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := w.Start(c.Request.Context()); err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeWorkerStartFailed, err.Error())
			return
		}
		ok(c, http.StatusOK, gin.H{"message": "session established, worker running"})
	}
}

// WorkerStatus handles GET /worker/status: reports the watermark, the most
// recent cycle, and the session state.
func WorkerStatus(w Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, http.StatusOK, w.Status())
	}
}
