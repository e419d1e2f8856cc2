package chat

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/swiftcab/chat-service/models"
)

// Inbound frame types accepted while a connection is joined.
const (
	FrameSendMessage = "send_message"
	FrameTypingStart = "typing_start"
	FrameTypingStop  = "typing_stop"
	FrameMarkRead    = "mark_read"
)

// Outbound event types.
const (
	EventConnectionEstablished = "connection_established"
	EventNewMessage            = "new_message"
	EventMessageSent           = "message_sent"
	EventTypingIndicator       = "typing_indicator"
	EventMessageRead           = "message_read"
	EventMessageEdited         = "message_edited"
	EventMessageDeleted        = "message_deleted"
	EventError                 = "error"
)

// Frame is one inbound client frame, discriminated by Type.
type Frame struct {
	Type        string             `json:"type" validate:"required"`
	Content     string             `json:"content,omitempty"`
	MessageType models.MessageType `json:"message_type,omitempty"`
	Metadata    models.Metadata    `json:"metadata,omitempty"`
	ReplyToID   *int64             `json:"reply_to_id,omitempty"`
	MessageIDs  []int64            `json:"message_ids,omitempty"`
}

// Event is one pre-encoded outbound frame plus routing directives the hub
// applies at fan-out time. Self-echo suppression belongs to the event, not
// to the registry.
type Event struct {
	Data []byte

	// ExcludeUserID suppresses delivery to the originating sender's
	// connections. Zero means deliver to everyone in the room.
	ExcludeUserID uuid.UUID

	// TargetUserID restricts delivery to a single user's connections.
	// Zero means no restriction.
	TargetUserID uuid.UUID
}

func encode(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("encode event: %v", err)
		return []byte(`{"type":"error","message":"internal error"}`)
	}
	return b
}

func ConnectionEstablishedEvent() Event {
	return Event{Data: encode(struct {
		Type string `json:"type"`
	}{EventConnectionEstablished})}
}

// NewMessageEvent fans a created message out to the room. The sender already
// holds the message from its send acknowledgement, so it is excluded.
func NewMessageEvent(msg *models.Message) Event {
	return Event{
		Data: encode(struct {
			Type    string          `json:"type"`
			Message *models.Message `json:"message"`
		}{EventNewMessage, msg}),
		ExcludeUserID: msg.SenderID,
	}
}

// MessageSentEvent acknowledges a send to the sender's own connection.
func MessageSentEvent(msg *models.Message) Event {
	return Event{Data: encode(struct {
		Type    string          `json:"type"`
		Message *models.Message `json:"message"`
	}{EventMessageSent, msg})}
}

func TypingIndicatorEvent(userID uuid.UUID, isTyping bool) Event {
	return Event{
		Data: encode(struct {
			Type     string    `json:"type"`
			UserID   uuid.UUID `json:"user_id"`
			IsTyping bool      `json:"is_typing"`
		}{EventTypingIndicator, userID, isTyping}),
		ExcludeUserID: userID,
	}
}

// MessageReadEvent is delivered only to the sender of the message that was
// read, not broadcast room-wide.
func MessageReadEvent(messageID int64, readBy, senderID uuid.UUID) Event {
	return Event{
		Data: encode(struct {
			Type      string    `json:"type"`
			MessageID int64     `json:"message_id"`
			ReadBy    uuid.UUID `json:"read_by"`
		}{EventMessageRead, messageID, readBy}),
		TargetUserID: senderID,
	}
}

func MessageEditedEvent(msg *models.Message) Event {
	return Event{
		Data: encode(struct {
			Type    string          `json:"type"`
			Message *models.Message `json:"message"`
		}{EventMessageEdited, msg}),
		ExcludeUserID: msg.SenderID,
	}
}

func MessageDeletedEvent(msg *models.Message) Event {
	return Event{
		Data: encode(struct {
			Type      string    `json:"type"`
			MessageID int64     `json:"message_id"`
			DeletedBy uuid.UUID `json:"deleted_by"`
		}{EventMessageDeleted, msg.ID, msg.SenderID}),
		ExcludeUserID: msg.SenderID,
	}
}

// ErrorEvent reports a recoverable protocol error in-band; the connection
// stays open.
func ErrorEvent(message string) Event {
	return Event{Data: encode(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{EventError, message})}
}
