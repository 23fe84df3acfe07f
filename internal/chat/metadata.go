package chat

import (
	"context"
	"time"

	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/ntur101/lunchmeet-chat-backend/internal/store"
)

// MetadataStore maintains the per-chat "last message" summary record.
type MetadataStore struct {
	store store.EventStore
}

func NewMetadataStore(s store.EventStore) *MetadataStore {
	return &MetadataStore{store: s}
}

// Touch upserts the chat's summary. UpdatedAt is store-assigned; the
// caller clock is recorded separately and never used for unread
// comparisons. Callers invoke Touch exactly once per acknowledged
// append, never before the append is acknowledged.
func (m *MetadataStore) Touch(ctx context.Context, chatID, lastMessage, senderID, senderName string) error {
	_, err := m.store.Write(ctx, store.MetadataPath(chatID), map[string]interface{}{
		"lastMessage":           lastMessage,
		"lastMessageSender":     senderID,
		"lastMessageSenderName": senderName,
		"updatedAt":             store.ServerTimestamp,
		"lastMessageTime":       time.Now().UnixMilli(),
	})
	return err
}

// Subscribe fires once immediately with the current summary (nil if the
// chat has never been written to) and again on every metadata write.
func (m *MetadataStore) Subscribe(chatID string, fn func(*models.ChatMetadata)) (store.UnsubscribeFunc, error) {
	return m.store.Subscribe(store.MetadataPath(chatID), func(recs []store.Record) {
		fn(decodeMetadata(chatID, recs))
	})
}

// Get reads the current summary once. A chat with no metadata yet
// returns nil, not an error.
func (m *MetadataStore) Get(ctx context.Context, chatID string) (*models.ChatMetadata, error) {
	var (
		meta  *models.ChatMetadata
		first = true
	)
	unsubscribe, err := m.store.Subscribe(store.MetadataPath(chatID), func(recs []store.Record) {
		if first {
			meta = decodeMetadata(chatID, recs)
			first = false
		}
	})
	if err != nil {
		return nil, err
	}
	unsubscribe()
	return meta, nil
}

func decodeMetadata(chatID string, recs []store.Record) *models.ChatMetadata {
	if len(recs) == 0 {
		return nil
	}
	fields := recs[0].Fields
	updatedAt := store.Int64Field(fields, "updatedAt")
	if updatedAt == 0 {
		// Partially-initialized record: treat as no data yet.
		return nil
	}
	return &models.ChatMetadata{
		ChatID:                chatID,
		LastMessage:           store.StringField(fields, "lastMessage"),
		LastMessageSender:     store.StringField(fields, "lastMessageSender"),
		LastMessageSenderName: store.StringField(fields, "lastMessageSenderName"),
		UpdatedAt:             updatedAt,
		LastMessageTime:       store.Int64Field(fields, "lastMessageTime"),
	}
}
