package models

// ChatMetadata is the per-chat "last message" summary. One record per
// chat, overwritten on every send. UpdatedAt is store-assigned and
// monotonically non-decreasing; it is the only timestamp the unread
// comparison trusts.
type ChatMetadata struct {
	ChatID                string `json:"chat_id"`
	LastMessage           string `json:"last_message"`
	LastMessageSender     string `json:"last_message_sender"`
	LastMessageSenderName string `json:"last_message_sender_name"`
	UpdatedAt             int64  `json:"updated_at"`        // ms since epoch, store-assigned
	LastMessageTime       int64  `json:"last_message_time"` // ms since epoch, sender clock
}
