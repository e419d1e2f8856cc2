package models

import "time"

// Attachment belongs to exactly one message. It is immutable once uploaded;
// when the owning message is soft-deleted the attachment is hidden with it.
type Attachment struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID    int64     `gorm:"not null;index" json:"message_id"`
	URL          string    `gorm:"type:text;not null" json:"url"`
	ThumbnailURL string    `gorm:"type:text" json:"thumbnail_url,omitempty"`
	ContentType  string    `gorm:"type:varchar(128);not null" json:"content_type"`
	Size         int64     `gorm:"not null" json:"size"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
