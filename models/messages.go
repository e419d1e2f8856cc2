package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeLocation MessageType = "location"
	MessageTypeSystem   MessageType = "system"
)

// DeletedMessagePlaceholder replaces the content of soft-deleted messages.
const DeletedMessagePlaceholder = "This message was deleted"

// ValidMessageType reports whether t is one of the supported message types.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeLocation, MessageTypeSystem:
		return true
	}
	return false
}

// Metadata is a free-form JSON map. For image and location messages the
// content field carries the caption and the structured payload (coordinates,
// dimensions) lives here.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "marshal metadata")
	}
	return string(b), nil
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.Errorf("unsupported metadata column type %T", value)
	}
	return errors.Wrap(json.Unmarshal(b, m), "unmarshal metadata")
}

// Message is a single chat message. The four flag pairs are independent:
// delivery and read receipts move forward only, edit and delete are
// orthogonal markers. A read message is always also delivered.
type Message struct {
	ID             int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uuid.UUID   `gorm:"type:uuid;not null;index:idx_messages_conv_created,priority:1;index:idx_messages_conv_read,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID   `gorm:"type:uuid;not null" json:"sender_id"`
	Type           MessageType `gorm:"type:varchar(16);not null;default:text" json:"message_type"`
	Content        string      `gorm:"type:text" json:"content"`
	Metadata       Metadata    `gorm:"type:jsonb" json:"metadata,omitempty"`
	ReplyToID      *int64      `json:"reply_to_id,omitempty"`

	IsDelivered bool       `gorm:"default:false" json:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	IsRead      bool       `gorm:"default:false;index:idx_messages_conv_read,priority:2" json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	IsEdited    bool       `gorm:"default:false" json:"is_edited"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	IsDeleted   bool       `gorm:"default:false" json:"is_deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_messages_conv_created,priority:2" json:"created_at"`

	Attachments []Attachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}
