package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compozy/vachanamrut/engine/infra/server/appstate"
)

// ErrMsgAppStateNotInitialized is the details text when the app state is missing.
const ErrMsgAppStateNotInitialized = "application state not initialized"

// GetAppState returns the app state or answers 500 and reports false.
func GetAppState(c *gin.Context) (*appstate.State, bool) {
	state, err := appstate.GetState(c.Request.Context())
	if err != nil {
		RespondWithStatus(c, http.StatusInternalServerError, ErrMsgAppStateNotInitialized)
		return nil, false
	}
	return state, true
}
