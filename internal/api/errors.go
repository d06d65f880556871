package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"seedbank/internal/drafts"
	"seedbank/internal/export"
	"seedbank/internal/middleware"
	"seedbank/internal/models"
)

type errorClass struct {
	target error
	status int
}

var errorClasses = []errorClass{
	{models.ErrRecordNotFound, http.StatusNotFound},
	{models.ErrKindUnsupported, http.StatusNotFound},
	{drafts.ErrSessionNotFound, http.StatusNotFound},
	{models.ErrInvalidRecord, http.StatusBadRequest},
	{drafts.ErrEmptyPatch, http.StatusBadRequest},
	{drafts.ErrNotBoundaryRecord, http.StatusBadRequest},
	{drafts.ErrVertexOutOfRange, http.StatusBadRequest},
	{export.ErrNoRecordSheets, http.StatusBadRequest},
	{drafts.ErrNothingToCommit, http.StatusConflict},
}

// abortWithError maps err onto a status code and a snake_case error code.
// Validation failures also carry the detail message.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	for _, class := range errorClasses {
		if !errors.Is(err, class.target) {
			continue
		}
		body := gin.H{"error": class.target.Error()}
		if errors.Is(err, models.ErrInvalidRecord) {
			body["detail"] = err.Error()
		}
		c.AbortWithStatusJSON(class.status, body)
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func abortInvalidPayload(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
}

func actorOf(c *gin.Context) string {
	return middleware.ActorFrom(c)
}
