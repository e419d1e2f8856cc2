package server

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.MaxMultipartMemory = 32 << 20
	s.defineRoutes(r)

	return r
}

func (s *Server) defineRoutes(router *gin.Engine) {
	historyLimiter := limitRateForChatHistory(newHistoryRateLimitStore())

	apirouter := router.Group("/api/v1")

	// The websocket endpoint authenticates from its query token; failures
	// surface as close codes, not HTTP statuses.
	apirouter.GET("/ws/chat/:conversationID", s.handleChatWS())

	authorized := apirouter.Group("/")
	authorized.Use(s.Authorize())
	authorized.POST("/chat/conversations", s.handleCreateConversation())
	authorized.GET("/chat/:conversationID/messages", historyLimiter, s.handleGetMessages())
	authorized.POST("/chat/:conversationID/read", s.handleMarkRead())
	authorized.POST("/chat/:conversationID/attachments", s.handleUploadAttachment())
	authorized.POST("/chat/:conversationID/archive", s.handleArchiveConversation())
	authorized.DELETE("/chat/:conversationID", s.handleDeleteConversation())
	authorized.PUT("/chat/messages/:messageID", s.handleEditMessage())
	authorized.DELETE("/chat/messages/:messageID", s.handleDeleteMessage())
}
