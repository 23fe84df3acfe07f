package chat

import (
	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
)

// HasUnread decides whether a chat holds unread activity for a user.
// Pure and synchronous: identical inputs always yield identical output.
//
// A nil watermark means the user has never read the chat, so any
// metadata counts as unread. A nil metadata means the chat has no
// messages, so it is never unread. A user's own last message never
// marks their chat unread, whatever the timestamps say.
func HasUnread(meta *models.ChatMetadata, wm *models.ReadWatermark, userID string) bool {
	if meta == nil {
		return false
	}
	var lastRead int64
	if wm != nil {
		lastRead = wm.LastReadTime
	}
	return meta.UpdatedAt > lastRead && meta.LastMessageSender != userID
}
