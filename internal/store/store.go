package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable wraps network or service failures on a write,
	// append, or subscribe call. The core never retries; retry policy
	// belongs to the caller.
	ErrStoreUnavailable = errors.New("event store unavailable")
	// ErrStaleWrite marks a write whose precondition no longer held by
	// the time it would apply.
	ErrStaleWrite = errors.New("stale write")
	// ErrMalformedRecord marks a record missing required fields. Readers
	// treat it as "no data yet", not as a failure.
	ErrMalformedRecord = errors.New("malformed record")
)

// ServerTimestamp is a placeholder value. Any field set to it is
// replaced with the store's own clock (ms since epoch) at write time.
// Callers use it wherever "now" must be authoritative rather than the
// local clock.
var ServerTimestamp = serverTimestamp{}

type serverTimestamp struct{}

// Record is one stored entry: a store-assigned key plus its fields.
type Record struct {
	ID     string
	Fields map[string]interface{}
}

// UnsubscribeFunc stops a subscription. Implementations must make it
// idempotent, and no callback may run after it returns.
type UnsubscribeFunc func()

// EventStore is the push-based key/value and append-log service the
// chat engine is built on. Write replaces the record at a path, Append
// adds a record under a path with a store-assigned id that increases
// lexically in append order, and Subscribe registers a live view that
// fires once immediately with the current state and again on every
// subsequent write under the path.
type EventStore interface {
	Write(ctx context.Context, path string, fields map[string]interface{}) (int64, error)
	Append(ctx context.Context, path string, fields map[string]interface{}) (Record, error)
	Subscribe(path string, fn func([]Record)) (UnsubscribeFunc, error)
}

// Logical paths at the store boundary.

func MessagesPath(chatID string) string {
	return fmt.Sprintf("chats/%s/messages", chatID)
}

func MetadataPath(chatID string) string {
	return fmt.Sprintf("chats/%s/metadata", chatID)
}

func ReadStatusPath(chatID, userID string) string {
	return fmt.Sprintf("chats/%s/readStatus/%s", chatID, userID)
}

// StringField reads a string field, tolerating absent keys.
func StringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// Int64Field reads a numeric field. Decoders may hand back any integer
// or float type depending on the codec, so widen everything.
func Int64Field(fields map[string]interface{}, key string) int64 {
	switch v := fields[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint64:
		return int64(v)
	case uint32:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint:
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	}
	return 0
}
