package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/docstore-service/common/logger"
	"github.com/yashrajoria/docstore-service/store"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

// BackendLister exposes the configured backends.
type BackendLister interface {
	Backends() []store.Backend
}

type HealthController struct {
	backends BackendLister
}

func NewHealthController(backends BackendLister) *HealthController {
	return &HealthController{backends: backends}
}

// Health pings every backend and reports 503 if any is unreachable.
func (hc *HealthController) Health(c *gin.Context) {
	status := http.StatusOK
	results := gin.H{}
	for _, b := range hc.backends.Backends() {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		err := b.Ping(ctx)
		cancel()
		if err != nil {
			logger.Warn(c, "backend unhealthy", zap.String("backend", b.Name()), zap.Error(err))
			results[b.Name()] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[b.Name()] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "backends": results})
}
