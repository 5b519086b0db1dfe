package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/compozy/vachanamrut/engine/infra/monitoring"
	askrouter "github.com/compozy/vachanamrut/engine/infra/server/router/ask"
	libraryrouter "github.com/compozy/vachanamrut/engine/infra/server/router/library"
	"github.com/compozy/vachanamrut/engine/infra/server/routes"
	"github.com/compozy/vachanamrut/pkg/logger"
)

// RegisterRoutes mounts every API route under the versioned base path.
func RegisterRoutes(ctx context.Context, r *gin.Engine, askLimit gin.HandlerFunc) {
	apiBase := r.Group(routes.Base())
	apiBase.GET("/health", CreateHealthHandler(monitoring.Version))
	askrouter.Register(apiBase, askLimit)
	libraryrouter.Register(apiBase)
	logger.FromContext(ctx).Debug("Completed route registration", "base", routes.Base())
}
