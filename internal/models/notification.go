package models

// UnreadStatus is the derived per-chat unread flag. It is recomputed
// whenever metadata or the watermark changes and is never persisted.
type UnreadStatus struct {
	ChatID    string `json:"chat_id"`
	HasUnread bool   `json:"has_unread"`
}

// NotificationState is the session-wide aggregate over all watched
// chats. It is a pure function of metadata and watermarks, never an
// independent source of truth.
type NotificationState struct {
	PerChatUnread map[string]bool `json:"per_chat_unread"`
	AnyUnread     bool            `json:"any_unread"`
}
