package models

// ReadWatermark records the last time a user viewed a chat. One record
// per (chat, user) pair, created on first read and overwritten on every
// subsequent read. Only the owning user ever writes it.
type ReadWatermark struct {
	ChatID       string `json:"chat_id"`
	UserID       string `json:"user_id"`
	LastReadTime int64  `json:"last_read_time"` // ms since epoch, store-assigned
	ClientTime   int64  `json:"client_time"`    // ms since epoch, reader clock
}
