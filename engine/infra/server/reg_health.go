package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/engine/infra/server/router"
	"github.com/compozy/vachanamrut/pkg/logger"
)

const readinessProbeTimeout = 2 * time.Second

var healthModules = []string{"Agent", "Librarian", "VectorDB"}

// CreateHealthHandler reports liveness and the readiness of each module. The
// service answers questions even when retrieval is down, so the status stays "ok".
//
//	@Summary      Get server health
//	@Tags         health
//	@Produce      json
//	@Success      200 {object} map[string]interface{} "Service is alive"
//	@Router       /api/v0/health [get]
func CreateHealthHandler(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, ok := router.GetAppState(c)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessProbeTimeout)
		defer cancel()
		retrieval := gin.H{"ready": true}
		if state.Retrieval != nil {
			if err := state.Retrieval.Ready(ctx); err != nil {
				logger.FromContext(ctx).Warn("Readiness probe failed", "module", "VectorDB", "error", err)
				retrieval = gin.H{"ready": false, "error": core.RedactError(err)}
			}
		}
		library := gin.H{"ready": state.Library != nil}
		ready := retrieval["ready"] == true && state.Library != nil
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": version,
			"modules": healthModules,
			"ready":   ready,
			"components": gin.H{
				"Agent":     gin.H{"ready": true},
				"Librarian": library,
				"VectorDB":  retrieval,
			},
		})
	}
}
