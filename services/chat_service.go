package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/swiftcab/chat-service/db"
	apiError "github.com/swiftcab/chat-service/errors"
	"github.com/swiftcab/chat-service/models"
	"gorm.io/gorm"
)

// CreateMessageParams carries everything needed to persist one message.
type CreateMessageParams struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Type           models.MessageType
	Content        string
	Metadata       models.Metadata
	ReplyToID      *int64
	Attachments    []models.Attachment
}

// ChatService is the message store and delivery tracker for ride chats:
// conversation lifecycle, message creation and pagination, and the
// sent -> delivered -> read state machine with its edit/delete flags.
type ChatService interface {
	GetOrCreateConversation(rideID, riderID, driverID uuid.UUID) (*models.Conversation, bool, error)
	GetConversation(id uuid.UUID) (*models.Conversation, error)
	ArchiveConversation(id uuid.UUID) error
	SoftDeleteConversation(id uuid.UUID) error

	CreateMessage(params CreateMessageParams) (*models.Message, error)
	GetMessages(conversationID, userID uuid.UUID, limit int, beforeID *int64) ([]models.Message, error)

	MarkDelivered(messageID int64) error
	MarkRead(conversationID uuid.UUID, messageIDs []int64, readerID uuid.UUID) ([]models.Message, error)
	EditMessage(messageID int64, editorID uuid.UUID, content string) (*models.Message, error)
	SoftDeleteMessage(messageID int64, requesterID uuid.UUID) (*models.Message, error)
	PurgeDeletedMessages(retention time.Duration) (int64, error)
}

// chatService struct
type chatService struct {
	chatRepo db.ChatRepository
	notifier NotificationService
}

// NewChatService instantiates a chatService. The notifier may be nil, in
// which case offline notification dispatch is skipped.
func NewChatService(chatRepo db.ChatRepository, notifier NotificationService) ChatService {
	return &chatService{
		chatRepo: chatRepo,
		notifier: notifier,
	}
}

// GetOrCreateConversation is idempotent on ride id: the first call for a
// ride creates the conversation, every later call returns it unchanged.
func (s *chatService) GetOrCreateConversation(rideID, riderID, driverID uuid.UUID) (*models.Conversation, bool, error) {
	conv, err := s.chatRepo.GetConversationByRide(rideID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apiError.ErrInternalServerError
	}

	conv = &models.Conversation{
		RideID:   rideID,
		RiderID:  riderID,
		DriverID: driverID,
		Status:   models.ConversationStatusActive,
	}
	if err := s.chatRepo.CreateConversation(conv); err != nil {
		// A concurrent call may have won the ride_id unique index; fall
		// back to the row it created.
		if existing, findErr := s.chatRepo.GetConversationByRide(rideID); findErr == nil {
			return existing, false, nil
		}
		log.Printf("GetOrCreateConversation error: %v", err)
		return nil, false, apiError.ErrInternalServerError
	}
	return conv, true, nil
}

func (s *chatService) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	conv, err := s.chatRepo.GetConversation(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.ErrNotFound
		}
		return nil, apiError.ErrInternalServerError
	}
	return conv, nil
}

func (s *chatService) ArchiveConversation(id uuid.UUID) error {
	return s.transitionConversation(id, models.ConversationStatusArchived)
}

func (s *chatService) SoftDeleteConversation(id uuid.UUID) error {
	return s.transitionConversation(id, models.ConversationStatusDeleted)
}

func (s *chatService) transitionConversation(id uuid.UUID, status models.ConversationStatus) error {
	if err := s.chatRepo.UpdateConversationStatus(id, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apiError.ErrNotFound
		}
		log.Printf("conversation %s -> %s error: %v", id, status, err)
		return apiError.ErrInternalServerError
	}
	return nil
}

func (s *chatService) CreateMessage(params CreateMessageParams) (*models.Message, error) {
	conv, err := s.GetConversation(params.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(params.SenderID) {
		return nil, apiError.ErrNotParticipant
	}
	if conv.Status != models.ConversationStatusActive {
		return nil, apiError.ErrConversationNotActive
	}

	msgType := params.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !models.ValidMessageType(msgType) {
		return nil, apiError.ErrInvalidMessageType
	}
	if msgType == models.MessageTypeText && strings.TrimSpace(params.Content) == "" {
		return nil, apiError.ErrEmptyContent
	}

	if params.ReplyToID != nil {
		target, err := s.chatRepo.GetMessage(*params.ReplyToID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apiError.ErrReplyNotInConversation
			}
			return nil, apiError.ErrInternalServerError
		}
		if target.ConversationID != conv.ID {
			return nil, apiError.ErrReplyNotInConversation
		}
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       params.SenderID,
		Type:           msgType,
		Content:        params.Content,
		Metadata:       params.Metadata,
		ReplyToID:      params.ReplyToID,
		Attachments:    params.Attachments,
	}
	if err := s.chatRepo.CreateMessage(msg); err != nil {
		log.Printf("CreateMessage error: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	// Offline delivery is an explicit call made by the owner of the
	// mutation; it never blocks or fails the send.
	if s.notifier != nil {
		s.notifier.NotifyNewMessage(msg, conv)
	}
	return msg, nil
}

func (s *chatService) GetMessages(conversationID, userID uuid.UUID, limit int, beforeID *int64) ([]models.Message, error) {
	conv, err := s.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apiError.ErrNotParticipant
	}

	msgs, err := s.chatRepo.GetMessages(conversationID, limit, beforeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.ErrNotFound
		}
		log.Printf("GetMessages error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	return msgs, nil
}

func (s *chatService) MarkDelivered(messageID int64) error {
	if err := s.chatRepo.MarkDelivered(messageID); err != nil {
		log.Printf("MarkDelivered error: %v", err)
		return apiError.ErrInternalServerError
	}
	return nil
}

func (s *chatService) MarkRead(conversationID uuid.UUID, messageIDs []int64, readerID uuid.UUID) ([]models.Message, error) {
	changed, err := s.chatRepo.MarkRead(conversationID, messageIDs, readerID)
	if err != nil {
		log.Printf("MarkRead error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	return changed, nil
}

func (s *chatService) EditMessage(messageID int64, editorID uuid.UUID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apiError.ErrEmptyContent
	}

	msg, err := s.chatRepo.GetMessage(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.ErrNotFound
		}
		return nil, apiError.ErrInternalServerError
	}
	if msg.SenderID != editorID {
		return nil, apiError.ErrNotSender
	}
	if msg.IsDeleted {
		return nil, apiError.ErrAlreadyDeleted
	}

	updated, err := s.chatRepo.EditMessage(messageID, content)
	if err != nil {
		var apiErr *apiError.Error
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		log.Printf("EditMessage error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	return updated, nil
}

func (s *chatService) SoftDeleteMessage(messageID int64, requesterID uuid.UUID) (*models.Message, error) {
	msg, err := s.chatRepo.GetMessage(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.ErrNotFound
		}
		return nil, apiError.ErrInternalServerError
	}
	if msg.SenderID != requesterID {
		return nil, apiError.ErrNotSender
	}

	deleted, err := s.chatRepo.SoftDeleteMessage(messageID)
	if err != nil {
		log.Printf("SoftDeleteMessage error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	return deleted, nil
}

func (s *chatService) PurgeDeletedMessages(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	purged, err := s.chatRepo.PurgeDeletedBefore(cutoff)
	if err != nil {
		log.Printf("PurgeDeletedMessages error: %v", err)
		return 0, apiError.ErrInternalServerError
	}
	return purged, nil
}
