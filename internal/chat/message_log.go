// Package chat implements the real-time chat engine: per-chat message
// logs, metadata summaries, read watermarks, the unread evaluator, the
// cross-chat notification aggregator, and the open-chat view-model.
// Everything is built on the store.EventStore contract; the engine owns
// ordering, reconciliation, and subscription lifetime, never transport.
package chat

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/ntur101/lunchmeet-chat-backend/internal/store"
)

// MessageLog is the per-chat ordered append log.
type MessageLog struct {
	store store.EventStore
}

func NewMessageLog(s store.EventStore) *MessageLog {
	return &MessageLog{store: s}
}

// Append submits a message to the store, which assigns its id and
// authoritative timestamp. The client id and client time are assigned
// here so the optimistic copy can be reconciled against the store echo.
// A store failure is returned as-is; retry is the caller's decision.
func (l *MessageLog) Append(ctx context.Context, chatID, text, senderID, senderName string) (*models.Message, error) {
	return l.AppendWithClientID(ctx, chatID, uuid.NewString(), time.Now().UnixMilli(), text, senderID, senderName)
}

// AppendWithClientID appends a message whose client id and client time
// were assigned by the caller, so an optimistic copy shown before the
// ack can be matched against the store echo.
func (l *MessageLog) AppendWithClientID(ctx context.Context, chatID, clientID string, clientTime int64, text, senderID, senderName string) (*models.Message, error) {
	rec, err := l.store.Append(ctx, store.MessagesPath(chatID), map[string]interface{}{
		"clientId":   clientID,
		"text":       text,
		"senderId":   senderID,
		"senderName": senderName,
		"timestamp":  store.ServerTimestamp,
		"createdAt":  clientTime,
	})
	if err != nil {
		return nil, err
	}

	msg := decodeMessage(chatID, rec)
	if msg == nil {
		return nil, store.ErrMalformedRecord
	}
	return msg, nil
}

// Subscribe registers a live view of the chat's messages. fn fires once
// immediately with the full ordered set and again on every append. The
// returned disposer is idempotent and no callback runs after it
// returns.
func (l *MessageLog) Subscribe(chatID string, fn func([]models.Message)) (store.UnsubscribeFunc, error) {
	return l.store.Subscribe(store.MessagesPath(chatID), func(recs []store.Record) {
		fn(decodeMessages(chatID, recs))
	})
}

// Snapshot reads the current ordered message set once.
func (l *MessageLog) Snapshot(ctx context.Context, chatID string) ([]models.Message, error) {
	var out []models.Message
	unsubscribe, err := l.store.Subscribe(store.MessagesPath(chatID), func(recs []store.Record) {
		if out == nil {
			out = decodeMessages(chatID, recs)
		}
	})
	if err != nil {
		return nil, err
	}
	unsubscribe()
	if out == nil {
		out = []models.Message{}
	}
	return out, nil
}

func decodeMessages(chatID string, recs []store.Record) []models.Message {
	msgs := make([]models.Message, 0, len(recs))
	for _, rec := range recs {
		if m := decodeMessage(chatID, rec); m != nil {
			msgs = append(msgs, *m)
		}
	}
	sortMessages(msgs)
	return msgs
}

// decodeMessage returns nil for records missing required fields; a
// malformed record reads as "no data yet", never as an error.
func decodeMessage(chatID string, rec store.Record) *models.Message {
	text := store.StringField(rec.Fields, "text")
	senderID := store.StringField(rec.Fields, "senderId")
	if text == "" || senderID == "" {
		return nil
	}
	return &models.Message{
		ID:         rec.ID,
		ChatID:     chatID,
		ClientID:   store.StringField(rec.Fields, "clientId"),
		SenderID:   senderID,
		SenderName: store.StringField(rec.Fields, "senderName"),
		Text:       text,
		ServerTime: store.Int64Field(rec.Fields, "timestamp"),
		ClientTime: store.Int64Field(rec.Fields, "createdAt"),
	}
}

// sortMessages applies the total order: confirmed messages by
// (serverTime, id), then the optimistic tail by clientTime. When a
// pending message gains its serverTime it re-sorts into the confirmed
// window in place; it never disappears.
func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := &msgs[i], &msgs[j]
		switch {
		case a.Confirmed() && b.Confirmed():
			if a.ServerTime != b.ServerTime {
				return a.ServerTime < b.ServerTime
			}
			return a.ID < b.ID
		case a.Confirmed():
			return true
		case b.Confirmed():
			return false
		default:
			return a.ClientTime < b.ClientTime
		}
	})
}
