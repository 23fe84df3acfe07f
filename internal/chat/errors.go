package chat

import "errors"

var (
	// ErrEmptyMessage rejects empty or whitespace-only sends before any
	// store round trip.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrChatClosed rejects operations on a view-model after Close.
	ErrChatClosed = errors.New("chat view is closed")
)
