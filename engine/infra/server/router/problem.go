package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compozy/vachanamrut/pkg/logger"
)

const problemContentType = "application/problem+json"

// ProblemDocument is the error envelope of every API failure.
type ProblemDocument struct {
	Status  int    `json:"status"            example:"404"`
	Error   string `json:"error"             example:"Not Found"`
	Details string `json:"details,omitempty" example:"Vachanamrut not found"`
}

// NewProblem builds a problem document titled with the status text.
func NewProblem(status int, details string) *ProblemDocument {
	return &ProblemDocument{
		Status:  status,
		Error:   http.StatusText(status),
		Details: details,
	}
}

// RespondProblem writes problem and aborts the handler chain.
func RespondProblem(c *gin.Context, problem *ProblemDocument) {
	if problem == nil {
		problem = NewProblem(http.StatusInternalServerError, "")
	}
	if problem.Error == "" {
		problem.Error = http.StatusText(problem.Status)
	}
	logProblem(c, problem)
	c.Header("Content-Type", problemContentType)
	c.AbortWithStatusJSON(problem.Status, problem)
}

// RespondWithStatus is shorthand for RespondProblem(c, NewProblem(status, details)).
func RespondWithStatus(c *gin.Context, status int, details string) {
	RespondProblem(c, NewProblem(status, details))
}

func logProblem(c *gin.Context, problem *ProblemDocument) {
	log := logger.FromContext(c.Request.Context())
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := []any{
		"status", problem.Status,
		"error", problem.Error,
		"details", problem.Details,
		"route", route,
	}
	if requestID := c.Request.Header.Get("X-Request-ID"); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if problem.Status >= http.StatusInternalServerError {
		log.Error("Request failed", fields...)
		return
	}
	log.Warn("Request failed", fields...)
}
