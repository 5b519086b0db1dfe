package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondProblem(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Should write the problem envelope and abort", func(t *testing.T) {
		r := gin.New()
		reached := false
		r.GET("/x", func(c *gin.Context) {
			RespondWithStatus(c, http.StatusNotFound, "Vachanamrut not found")
		}, func(*gin.Context) { reached = true })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", http.NoBody))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, problemContentType, w.Header().Get("Content-Type"))
		var doc ProblemDocument
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, ProblemDocument{Status: 404, Error: "Not Found", Details: "Vachanamrut not found"}, doc)
		assert.False(t, reached)
	})

	t.Run("Should default a nil problem to an internal error", func(t *testing.T) {
		r := gin.New()
		r.GET("/x", func(c *gin.Context) { RespondProblem(c, nil) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", http.NoBody))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"status":500,"error":"Internal Server Error"}`, w.Body.String())
	})
}
