package askrouter

import (
	"github.com/gin-gonic/gin"
)

// Register mounts the ask routes on the API group. limit, when set, guards
// the question endpoint only.
func Register(apiBase *gin.RouterGroup, limit gin.HandlerFunc) {
	group := apiBase.Group("/ask")
	if limit != nil {
		group.POST("", limit, ask)
	} else {
		group.POST("", ask)
	}
	group.GET("/:id/events", replay)
}
