package libraryrouter

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/compozy/vachanamrut/engine/infra/server/router"
	"github.com/compozy/vachanamrut/engine/knowledge/librarian"
)

const msgNotFound = "Vachanamrut not found"

// getVachanamrut handles GET /vachanamrut.
//
//	@Summary      Get a discourse
//	@Description  Returns the full text of one discourse.
//	@Tags         library
//	@Produce      json
//	@Param        chapter query string true "Chapter name" example("Gadhada")
//	@Param        number query int true "Discourse number" example(1)
//	@Param        section query string false "Section" example("I")
//	@Success      200 {object} librarian.Discourse
//	@Failure      400 {object} router.ProblemDocument "Missing or invalid parameters"
//	@Failure      404 {object} router.ProblemDocument "Vachanamrut not found"
//	@Router       /api/v0/vachanamrut [get]
func getVachanamrut(c *gin.Context) {
	state, ok := router.GetAppState(c)
	if !ok {
		return
	}
	chapter := strings.TrimSpace(c.Query("chapter"))
	if chapter == "" {
		router.RespondWithStatus(c, http.StatusBadRequest, "chapter is required")
		return
	}
	number, err := strconv.Atoi(strings.TrimSpace(c.Query("number")))
	if err != nil {
		router.RespondWithStatus(c, http.StatusBadRequest, "number must be an integer")
		return
	}
	if state.Library == nil {
		router.RespondWithStatus(c, http.StatusServiceUnavailable, "corpus not loaded")
		return
	}
	discourse, err := state.Library.Lookup(chapter, c.Query("section"), number)
	if errors.Is(err, librarian.ErrNotFound) {
		router.RespondWithStatus(c, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		router.RespondWithStatus(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, discourse)
}

// Register mounts the library routes on the API group.
func Register(apiBase *gin.RouterGroup) {
	apiBase.GET("/vachanamrut", getVachanamrut)
}
