package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/swiftcab/chat-service/chat"
	errs "github.com/swiftcab/chat-service/errors"
	"github.com/swiftcab/chat-service/models"
	"github.com/swiftcab/chat-service/server/response"
	"github.com/swiftcab/chat-service/services"
)

type createConversationRequest struct {
	RideID   uuid.UUID `json:"ride_id" binding:"required"`
	RiderID  uuid.UUID `json:"rider_id" binding:"required"`
	DriverID uuid.UUID `json:"driver_id" binding:"required"`
}

// handleCreateConversation is called by the ride service once a driver is
// assigned and both parties are known. Idempotent on ride id.
func (s *Server) handleCreateConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		conv, created, err := s.ChatService.GetOrCreateConversation(req.RideID, req.RiderID, req.DriverID)
		if err != nil {
			response.HandleErrors(c, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		response.JSON(c, "conversation ready", status, gin.H{
			"conversation": conv,
			"created":      created,
		}, nil)
	}
}

func (s *Server) handleGetMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.New("Unauthorized", http.StatusUnauthorized))
			return
		}
		conversationID, err := uuid.Parse(c.Param("conversationID"))
		if err != nil {
			response.JSON(c, "invalid conversation id", http.StatusBadRequest, nil, err)
			return
		}

		limit := s.Config.MessagePageSize
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				response.JSON(c, "invalid limit", http.StatusBadRequest, nil, errs.ErrBadRequest)
				return
			}
			if parsed > s.Config.MessagePageSizeMax {
				parsed = s.Config.MessagePageSizeMax
			}
			limit = parsed
		}

		var beforeID *int64
		if raw := c.Query("before_id"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				response.JSON(c, "invalid before_id", http.StatusBadRequest, nil, errs.ErrBadRequest)
				return
			}
			beforeID = &parsed
		}

		msgs, err := s.ChatService.GetMessages(conversationID, userID, limit, beforeID)
		if err != nil {
			response.HandleErrors(c, err)
			return
		}
		response.JSON(c, "messages retrieved successfully", http.StatusOK, msgs, nil)
	}
}

type markReadRequest struct {
	MessageIDs []int64 `json:"message_ids" binding:"required,min=1"`
}

// handleMarkRead is the REST twin of the mark_read frame, used by clients
// syncing after a reconnect. Receipts still go to each message's sender.
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.New("Unauthorized", http.StatusUnauthorized))
			return
		}
		conversationID, err := uuid.Parse(c.Param("conversationID"))
		if err != nil {
			response.JSON(c, "invalid conversation id", http.StatusBadRequest, nil, err)
			return
		}
		var req markReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		conv, err := s.ChatService.GetConversation(conversationID)
		if err != nil {
			response.HandleErrors(c, err)
			return
		}
		if !conv.HasParticipant(userID) {
			response.HandleErrors(c, errs.ErrNotParticipant)
			return
		}

		changed, err := s.ChatService.MarkRead(conversationID, req.MessageIDs, userID)
		if err != nil {
			response.HandleErrors(c, err)
			return
		}
		for i := range changed {
			m := &changed[i]
			s.Hub.Broadcast(conversationID, chat.MessageReadEvent(m.ID, userID, m.SenderID))
		}
		response.JSON(c, "messages marked read", http.StatusOK, gin.H{"updated": len(changed)}, nil)
	}
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) handleEditMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.New("Unauthorized", http.StatusUnauthorized))
			return
		}
		messageID, err := strconv.ParseInt(c.Param("messageID"), 10, 64)
		if err != nil {
			response.JSON(c, "invalid message id", http.StatusBadRequest, nil, err)
			return
		}
		var req editMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		msg, err := s.ChatService.EditMessage(messageID, userID, req.Content)
		if err != nil {
			response.HandleErrors(c, err)
			return
		}

		// The other participant sees the edit in real time, not only on
		// the next fetch.
		s.Hub.Broadcast(msg.ConversationID, chat.MessageEditedEvent(msg))
		response.JSON(c, "message edited", http.StatusOK, msg, nil)
	}
}

func (s *Server) handleDeleteMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.New("Unauthorized", http.StatusUnauthorized))
			return
		}
		messageID, err := strconv.ParseInt(c.Param("messageID"), 10, 64)
		if err != nil {
			response.JSON(c, "invalid message id", http.StatusBadRequest, nil, err)
			return
		}

		msg, err := s.ChatService.SoftDeleteMessage(messageID, userID)
		if err != nil {
			response.HandleErrors(c, err)
			return
		}

		s.Hub.Broadcast(msg.ConversationID, chat.MessageDeletedEvent(msg))
		response.JSON(c, "message deleted", http.StatusOK, msg, nil)
	}
}

// handleUploadAttachment stores the file first and only then creates the
// message carrying it. A storage failure aborts the send with nothing
// persisted.
func (s *Server) handleUploadAttachment() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.New("Unauthorized", http.StatusUnauthorized))
			return
		}
		conversationID, err := uuid.Parse(c.Param("conversationID"))
		if err != nil {
			response.JSON(c, "invalid conversation id", http.StatusBadRequest, nil, err)
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			response.JSON(c, "file is required", http.StatusBadRequest, nil, err)
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}
		defer file.Close()

		attachment, err := s.MediaService.UploadAttachment(c.Request.Context(), file, fileHeader)
		if err != nil {
			response.HandleErrors(c, err)
			return
		}

		msg, err := s.ChatService.CreateMessage(services.CreateMessageParams{
			ConversationID: conversationID,
			SenderID:       userID,
			Type:           models.MessageTypeImage,
			Content:        c.PostForm("caption"),
			Attachments:    []models.Attachment{*attachment},
		})
		if err != nil {
			response.HandleErrors(c, err)
			return
		}

		s.Hub.Broadcast(conversationID, chat.NewMessageEvent(msg))
		response.JSON(c, "attachment sent", http.StatusCreated, msg, nil)
	}
}

func (s *Server) handleArchiveConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID, err := uuid.Parse(c.Param("conversationID"))
		if err != nil {
			response.JSON(c, "invalid conversation id", http.StatusBadRequest, nil, err)
			return
		}
		if err := s.ChatService.ArchiveConversation(conversationID); err != nil {
			response.HandleErrors(c, err)
			return
		}
		response.JSON(c, "conversation archived", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleDeleteConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID, err := uuid.Parse(c.Param("conversationID"))
		if err != nil {
			response.JSON(c, "invalid conversation id", http.StatusBadRequest, nil, err)
			return
		}
		if err := s.ChatService.SoftDeleteConversation(conversationID); err != nil {
			response.HandleErrors(c, err)
			return
		}
		response.JSON(c, "conversation deleted", http.StatusOK, nil, nil)
	}
}
