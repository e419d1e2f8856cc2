package errors

import (
	"fmt"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// Error is an API-facing error carrying the HTTP status that should be
// reported alongside it.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// New creates a new Error with the given message and status code.
func New(message string, status int) *Error {
	return &Error{
		Message: message,
		Status:  status,
	}
}

var (
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
	ErrNotFound            = New("not found", http.StatusNotFound)
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)

	// Chat domain errors. These map onto in-band error frames on the
	// websocket path and onto HTTP statuses on the REST path.
	ErrNotParticipant         = New("user is not a participant in this conversation", http.StatusForbidden)
	ErrConversationNotActive  = New("conversation is not active", http.StatusConflict)
	ErrEmptyContent           = New("message content cannot be empty", http.StatusBadRequest)
	ErrInvalidMessageType     = New("unsupported message type", http.StatusBadRequest)
	ErrNotSender              = New("only the sender can modify this message", http.StatusForbidden)
	ErrAlreadyDeleted         = New("message has already been deleted", http.StatusConflict)
	ErrReplyNotInConversation = New("reply target is not in this conversation", http.StatusBadRequest)
	ErrAttachmentTooLarge     = New("attachment exceeds the size limit", http.StatusRequestEntityTooLarge)
	ErrStorage                = New("attachment storage failed", http.StatusBadGateway)
)

// ErrorHandler is plugged into the rate-limit middleware.
func ErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"message": fmt.Sprintf("too many requests, try again in %s", time.Until(info.ResetTime).Round(time.Second)),
	})
}
