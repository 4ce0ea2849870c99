package api

import (
	"net/http"
	"sync"

	"omnichannel-gateway/internal/bootstrap"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	boot *bootstrap.Bootstrapper

	mu     sync.RWMutex
	status *bootstrap.Status
}

func NewHealthHandler(boot *bootstrap.Bootstrapper) *HealthHandler {
	return &HealthHandler{boot: boot}
}

// SetStatus records the latest bootstrap result for /ready.
func (h *HealthHandler) SetStatus(status *bootstrap.Status) {
	h.mu.Lock()
	h.status = status
	h.mu.Unlock()
}

func (h *HealthHandler) GetHealth(c *gin.Context) {
	health := h.boot.HealthCheck(c.Request.Context())
	code := http.StatusOK
	if !health.Store {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, health)
}

func (h *HealthHandler) GetReadiness(c *gin.Context) {
	h.mu.RLock()
	status := h.status
	h.mu.RUnlock()

	if status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bootstrap has not run"})
		return
	}
	code := http.StatusOK
	if !status.OverallReady {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
