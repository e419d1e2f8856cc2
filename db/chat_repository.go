package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	apiError "github.com/swiftcab/chat-service/errors"
	"github.com/swiftcab/chat-service/models"
	"gorm.io/gorm"
)

// ChatRepository persists conversations and messages. All lifecycle
// transitions are conditional updates so that concurrent writers resolve
// deterministically instead of tearing state.
type ChatRepository interface {
	CreateConversation(conv *models.Conversation) error
	GetConversation(id uuid.UUID) (*models.Conversation, error)
	GetConversationByRide(rideID uuid.UUID) (*models.Conversation, error)
	UpdateConversationStatus(id uuid.UUID, status models.ConversationStatus) error

	CreateMessage(msg *models.Message) error
	GetMessage(id int64) (*models.Message, error)
	GetMessages(conversationID uuid.UUID, limit int, beforeID *int64) ([]models.Message, error)

	MarkDelivered(id int64) error
	MarkRead(conversationID uuid.UUID, messageIDs []int64, readerID uuid.UUID) ([]models.Message, error)
	EditMessage(id int64, content string) (*models.Message, error)
	SoftDeleteMessage(id int64) (*models.Message, error)
	PurgeDeletedBefore(cutoff time.Time) (int64, error)
}

type chatRepo struct {
	DB *gorm.DB
}

// NewChatRepo creates a new instance of ChatRepository
func NewChatRepo(db *GormDB) ChatRepository {
	return &chatRepo{db.DB}
}

func (r *chatRepo) CreateConversation(conv *models.Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.Status == "" {
		conv.Status = models.ConversationStatusActive
	}
	if err := r.DB.Create(conv).Error; err != nil {
		return errors.Wrap(err, "create conversation")
	}
	return nil
}

func (r *chatRepo) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.DB.First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *chatRepo) GetConversationByRide(rideID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.DB.First(&conv, "ride_id = ?", rideID).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpdateConversationStatus applies a monotonic status transition. Updating to
// a status the conversation already is in, or has moved past, is a no-op.
func (r *chatRepo) UpdateConversationStatus(id uuid.UUID, status models.ConversationStatus) error {
	var allowedFrom []models.ConversationStatus
	switch status {
	case models.ConversationStatusArchived:
		allowedFrom = []models.ConversationStatus{models.ConversationStatusActive}
	case models.ConversationStatusDeleted:
		allowedFrom = []models.ConversationStatus{models.ConversationStatusActive, models.ConversationStatusArchived}
	default:
		return apiError.ErrBadRequest
	}

	res := r.DB.Model(&models.Conversation{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Update("status", status)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update conversation status")
	}
	if res.RowsAffected == 0 {
		// Either the conversation does not exist or the transition is a
		// no-op; distinguish the two.
		if _, err := r.GetConversation(id); err != nil {
			return err
		}
	}
	return nil
}

// CreateMessage inserts the message (with any attachments) and bumps the
// conversation's last-message pointer in a single transaction. No state with
// a stale pointer is ever observable.
func (r *chatRepo) CreateMessage(msg *models.Message) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return errors.Wrap(err, "insert message")
		}
		err := tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_message_id": msg.ID,
				"last_message_at": msg.CreatedAt,
			}).Error
		if err != nil {
			return errors.Wrap(err, "update last message pointer")
		}
		return nil
	})
}

func (r *chatRepo) GetMessage(id int64) (*models.Message, error) {
	var msg models.Message
	if err := r.DB.Preload("Attachments").First(&msg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessages returns messages newest-first, keyset-paginated on
// (created_at, id) so ties on the timestamp break deterministically.
func (r *chatRepo) GetMessages(conversationID uuid.UUID, limit int, beforeID *int64) ([]models.Message, error) {
	q := r.DB.Where("conversation_id = ?", conversationID)

	if beforeID != nil {
		var cursor models.Message
		if err := r.DB.Select("id", "created_at").First(&cursor, "id = ?", *beforeID).Error; err != nil {
			return nil, err
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var msgs []models.Message
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Preload("Attachments").
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(err, "fetch messages")
	}
	return msgs, nil
}

// MarkDelivered sets the delivery receipt if unset. Already-delivered
// messages are left untouched, so the receipt never regresses.
func (r *chatRepo) MarkDelivered(id int64) error {
	now := time.Now()
	res := r.DB.Model(&models.Message{}).
		Where("id = ? AND is_delivered = ?", id, false).
		Updates(map[string]interface{}{
			"is_delivered": true,
			"delivered_at": now,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "mark delivered")
	}
	return nil
}

// MarkRead flags every listed message that belongs to the conversation, was
// not sent by the reader, and is still unread. Reading implies delivery, so
// a missing delivery receipt is filled in with the same timestamp. Returns
// the messages actually changed.
func (r *chatRepo) MarkRead(conversationID uuid.UUID, messageIDs []int64, readerID uuid.UUID) ([]models.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	now := time.Now()
	var changed []models.Message
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var candidates []models.Message
		err := tx.Where("id IN ? AND conversation_id = ? AND sender_id <> ? AND is_read = ?",
			messageIDs, conversationID, readerID, false).
			Find(&candidates).Error
		if err != nil {
			return errors.Wrap(err, "load unread messages")
		}

		for i := range candidates {
			m := &candidates[i]
			updates := map[string]interface{}{
				"is_read": true,
				"read_at": now,
			}
			if !m.IsDelivered {
				updates["is_delivered"] = true
				updates["delivered_at"] = now
			}
			if err := tx.Model(m).Updates(updates).Error; err != nil {
				return errors.Wrap(err, "mark read")
			}
			m.IsRead = true
			m.ReadAt = &now
			if !m.IsDelivered {
				m.IsDelivered = true
				m.DeliveredAt = &now
			}
		}
		changed = candidates
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// EditMessage replaces the content of a message that has not been deleted.
// The guard is part of the UPDATE itself, so a concurrent soft-delete wins
// cleanly: the edit observes zero affected rows and fails.
func (r *chatRepo) EditMessage(id int64, content string) (*models.Message, error) {
	now := time.Now()
	res := r.DB.Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"content":   content,
			"is_edited": true,
			"edited_at": now,
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "edit message")
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetMessage(id); err != nil {
			return nil, err
		}
		return nil, apiError.ErrAlreadyDeleted
	}
	return r.GetMessage(id)
}

// SoftDeleteMessage tombstones a message: the content is replaced with the
// fixed placeholder and the deletion flag pair is set. Deleting an already
// deleted message is a no-op.
func (r *chatRepo) SoftDeleteMessage(id int64) (*models.Message, error) {
	now := time.Now()
	res := r.DB.Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"content":    models.DeletedMessagePlaceholder,
			"is_deleted": true,
			"deleted_at": now,
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "soft delete message")
	}
	return r.GetMessage(id)
}

// PurgeDeletedBefore physically removes messages soft-deleted before the
// cutoff, along with their attachments. Run from the retention job, never
// from a request path.
func (r *chatRepo) PurgeDeletedBefore(cutoff time.Time) (int64, error) {
	var purged int64
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var ids []int64
		err := tx.Model(&models.Message{}).
			Where("is_deleted = ? AND deleted_at < ?", true, cutoff).
			Pluck("id", &ids).Error
		if err != nil {
			return errors.Wrap(err, "find expired messages")
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("message_id IN ?", ids).Delete(&models.Attachment{}).Error; err != nil {
			return errors.Wrap(err, "purge attachments")
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Message{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "purge messages")
		}
		purged = res.RowsAffected
		return nil
	})
	return purged, err
}
