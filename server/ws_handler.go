package server

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/swiftcab/chat-service/server/response"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy mirrors the permissive CORS config on the REST side;
	// identity comes from the token, not the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleChatWS upgrades the connection and hands it to the gateway, which
// runs the auth handshake and the protocol state machine.
func (s *Server) handleChatWS() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID, err := uuid.Parse(c.Param("conversationID"))
		if err != nil {
			response.JSON(c, "invalid conversation id", http.StatusBadRequest, nil, err)
			return
		}
		token := c.Query("token")

		conn, err := chatUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}

		s.Gateway.Serve(conn, conversationID, token)
	}
}
