package cache

import (
	"fmt"
	"time"

	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// ChatListTTL bounds how stale a cached chat list may get; every send
// and mark-read invalidates the affected users anyway.
const ChatListTTL = 1 * time.Minute

// ChatListCache holds the assembled chat-list rows per user, so the
// list endpoint doesn't re-read metadata and watermarks for every chat
// on every poll.
type ChatListCache struct {
	redis *RedisCache
}

func NewChatListCache(redis *RedisCache) *ChatListCache {
	return &ChatListCache{redis: redis}
}

func chatListKey(userID string) string {
	return fmt.Sprintf("chatlist:%s", userID)
}

// Get retrieves the cached chat list for a user
func (cc *ChatListCache) Get(userID string) ([]models.ChatSummary, bool) {
	if cc == nil || cc.redis == nil {
		return nil, false
	}
	data, err := cc.redis.Get(chatListKey(userID))
	if err != nil || data == nil {
		return nil, false
	}

	var summaries []models.ChatSummary
	if err := msgpack.Unmarshal(data, &summaries); err != nil {
		return nil, false
	}
	return summaries, true
}

// Set caches the chat list for a user
func (cc *ChatListCache) Set(userID string, summaries []models.ChatSummary) error {
	if cc == nil || cc.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(summaries)
	if err != nil {
		return err
	}
	return cc.redis.Set(chatListKey(userID), data, ChatListTTL)
}

// Invalidate removes a user's cached chat list
func (cc *ChatListCache) Invalidate(userID string) error {
	if cc == nil || cc.redis == nil {
		return nil
	}
	return cc.redis.Delete(chatListKey(userID))
}
