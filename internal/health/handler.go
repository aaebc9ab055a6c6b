// Package health exposes the broker's liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StoreChecker reports whether the backing API-key store (store mode only)
// is currently reachable. Dev mode and master-key mode have no store and
// are always ready.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// Handler serves the broker's two HTTP probes.
type Handler struct {
	store StoreChecker
}

func NewHandler(store StoreChecker) *Handler {
	return &Handler{store: store}
}

// Liveness answers the spec's literal GET /health contract.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Readiness is a bonus probe: ready unless store mode is configured and the
// store is currently unreachable.
func (h *Handler) Readiness(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "auth store unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
