package chat

import (
	"context"
	"time"

	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/ntur101/lunchmeet-chat-backend/internal/store"
)

// WatermarkStore maintains per-(chat, user) last-read timestamps. A
// watermark is owned exclusively by its user; there is no API shape for
// writing another user's record.
type WatermarkStore struct {
	store store.EventStore
}

func NewWatermarkStore(s store.EventStore) *WatermarkStore {
	return &WatermarkStore{store: s}
}

// MarkRead sets the user's watermark to the store's clock. Called when
// a chat enters the foreground and again on every message that arrives
// while it stays open.
func (w *WatermarkStore) MarkRead(ctx context.Context, chatID, userID string) error {
	_, err := w.store.Write(ctx, store.ReadStatusPath(chatID, userID), map[string]interface{}{
		"lastReadTime": store.ServerTimestamp,
		"timestamp":    time.Now().UnixMilli(),
	})
	return err
}

// Subscribe fires once immediately with the current watermark (nil if
// the user has never opened the chat) and again on every MarkRead.
func (w *WatermarkStore) Subscribe(chatID, userID string, fn func(*models.ReadWatermark)) (store.UnsubscribeFunc, error) {
	return w.store.Subscribe(store.ReadStatusPath(chatID, userID), func(recs []store.Record) {
		fn(decodeWatermark(chatID, userID, recs))
	})
}

// Get reads the current watermark once; nil means never read.
func (w *WatermarkStore) Get(ctx context.Context, chatID, userID string) (*models.ReadWatermark, error) {
	var (
		wm    *models.ReadWatermark
		first = true
	)
	unsubscribe, err := w.store.Subscribe(store.ReadStatusPath(chatID, userID), func(recs []store.Record) {
		if first {
			wm = decodeWatermark(chatID, userID, recs)
			first = false
		}
	})
	if err != nil {
		return nil, err
	}
	unsubscribe()
	return wm, nil
}

func decodeWatermark(chatID, userID string, recs []store.Record) *models.ReadWatermark {
	if len(recs) == 0 {
		return nil
	}
	lastRead := store.Int64Field(recs[0].Fields, "lastReadTime")
	if lastRead == 0 {
		return nil
	}
	return &models.ReadWatermark{
		ChatID:       chatID,
		UserID:       userID,
		LastReadTime: lastRead,
		ClientTime:   store.Int64Field(recs[0].Fields, "timestamp"),
	}
}
