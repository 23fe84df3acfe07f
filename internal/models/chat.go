package models

import (
	"time"
)

// Chat is a roster entry: which chats exist and who participates.
// Message content never lives here; it lives in the event store.
type Chat struct {
	ID        string    `gorm:"primaryKey;type:varchar(128)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Participants []ChatParticipant `gorm:"foreignKey:ChatID" json:"participants"`
}

type ChatParticipant struct {
	ChatID      string    `gorm:"primaryKey;type:varchar(128)" json:"chat_id"`
	UserID      string    `gorm:"primaryKey;type:varchar(64);index" json:"user_id"`
	DisplayName string    `gorm:"type:varchar(128)" json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// ChatSummary is one row of the chat-list view: roster info joined with
// the live metadata and unread flag for the requesting user.
type ChatSummary struct {
	ChatID        string `json:"chat_id"`
	DisplayName   string `json:"display_name"`
	LastMessage   string `json:"last_message"`
	LastUpdatedAt int64  `json:"last_updated_at"`
	HasUnread     bool   `json:"has_unread"`
}
