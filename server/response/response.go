package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apiError "github.com/swiftcab/chat-service/errors"
)

// JSON writes the uniform response envelope.
func JSON(c *gin.Context, message string, status int, data interface{}, err error) {
	errMessage := ""
	if err != nil {
		errMessage = err.Error()
	}
	c.JSON(status, gin.H{
		"message": message,
		"data":    data,
		"errors":  errMessage,
		"status":  http.StatusText(status),
	})
}

// HandleErrors maps an error to the envelope, using the embedded status for
// API errors and 500 for everything else.
func HandleErrors(c *gin.Context, err error) {
	if apiErr, ok := err.(*apiError.Error); ok {
		JSON(c, apiErr.Message, apiErr.Status, nil, apiErr)
		return
	}
	JSON(c, "internal server error", http.StatusInternalServerError, nil, err)
}
