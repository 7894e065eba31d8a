package errors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// WriteError maps a fault to an HTTP response. Internal pipeline faults
// never reach this path; anything unrecognized becomes a 500.
func WriteError(c *gin.Context, err error) {
	var ve *ValidationError
	var sc *StateConflictError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.As(err, &sc):
		c.JSON(http.StatusConflict, gin.H{"error": sc.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
