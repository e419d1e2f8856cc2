package models

import (
	"time"

	"github.com/google/uuid"
)

type ConversationStatus string

const (
	ConversationStatusActive   ConversationStatus = "active"
	ConversationStatusArchived ConversationStatus = "archived"
	ConversationStatusDeleted  ConversationStatus = "deleted"
)

// statusRank orders conversation statuses. Transitions only move forward:
// active -> archived -> deleted.
var statusRank = map[ConversationStatus]int{
	ConversationStatusActive:   0,
	ConversationStatusArchived: 1,
	ConversationStatusDeleted:  2,
}

// CanTransitionTo reports whether moving from s to target respects the
// monotonic status order. Re-applying the current status is allowed so the
// transition endpoints stay idempotent.
func (s ConversationStatus) CanTransitionTo(target ConversationStatus) bool {
	return statusRank[target] >= statusRank[s]
}

// Conversation is the two-party chat session bound to a single ride. The
// rider and driver are fixed at creation and never change.
type Conversation struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	RideID        uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex" json:"ride_id"`
	RiderID       uuid.UUID          `gorm:"type:uuid;not null" json:"rider_id"`
	DriverID      uuid.UUID          `gorm:"type:uuid;not null" json:"driver_id"`
	Status        ConversationStatus `gorm:"type:varchar(16);not null;default:active" json:"status"`
	LastMessageID *int64             `json:"last_message_id"`
	LastMessageAt *time.Time         `json:"last_message_at"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return userID == c.RiderID || userID == c.DriverID
}

// OtherParticipant returns the participant that is not userID. The caller is
// expected to have checked membership first.
func (c *Conversation) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if userID == c.RiderID {
		return c.DriverID
	}
	return c.RiderID
}
