package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/ntur101/lunchmeet-chat-backend/internal/cache"
	"github.com/ntur101/lunchmeet-chat-backend/internal/chat"
	"github.com/ntur101/lunchmeet-chat-backend/internal/httpx"
	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/ntur101/lunchmeet-chat-backend/internal/service"
	"github.com/ntur101/lunchmeet-chat-backend/internal/store"
	"github.com/ntur101/lunchmeet-chat-backend/internal/validation"
)

type ChatHandler struct {
	chatService   *service.ChatService
	messages      *chat.MessageLog
	metadata      *chat.MetadataStore
	watermarks    *chat.WatermarkStore
	chatListCache *cache.ChatListCache
}

func NewChatHandler(chatService *service.ChatService, messages *chat.MessageLog, metadata *chat.MetadataStore, watermarks *chat.WatermarkStore, chatListCache *cache.ChatListCache) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		messages:      messages,
		metadata:      metadata,
		watermarks:    watermarks,
		chatListCache: chatListCache,
	}
}

type CreateChatInput struct {
	PeerID   string `json:"peer_id"`
	PeerName string `json:"peer_name"`
}

// CreateChat ensures the direct chat between the caller and a peer.
func (h *ChatHandler) CreateChat(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	displayName, _ := httpx.LocalString(c, "displayName")

	var input CreateChatInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if !validation.ValidateUserID(input.PeerID) {
		return httpx.BadRequest(c, "invalid_peer", "peer_id is required")
	}

	created, err := h.chatService.EnsureDirectChat(userID, displayName, input.PeerID, input.PeerName)
	if err != nil {
		return httpx.Internal(c, "create_chat_failed")
	}

	h.chatListCache.Invalidate(userID)
	h.chatListCache.Invalidate(input.PeerID)
	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetChats assembles the chat-list view: roster joined with live
// metadata and the caller's unread flag. A store failure for one chat
// degrades that row only; the rest of the list still renders.
func (h *ChatHandler) GetChats(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	if cached, ok := h.chatListCache.Get(userID); ok {
		return c.JSON(fiber.Map{"chats": cached, "count": len(cached)})
	}

	chats, err := h.chatService.ListUserChats(userID)
	if err != nil {
		return httpx.Internal(c, "fetch_chats_failed")
	}

	summaries, degraded := h.summarizeAll(c.Context(), chats, userID)

	// A degraded row is a transient store failure; caching it would
	// freeze the broken view for the full TTL.
	if len(summaries) > 0 && !degraded {
		if err := h.chatListCache.Set(userID, summaries); err != nil {
			log.Printf("Error caching chat list for user %s: %v", userID, err)
		}
	}
	return c.JSON(fiber.Map{"chats": summaries, "count": len(summaries)})
}

func (h *ChatHandler) summarizeAll(ctx context.Context, chats []models.Chat, userID string) ([]models.ChatSummary, bool) {
	summaries := make([]models.ChatSummary, 0, len(chats))
	degraded := false
	for i := range chats {
		row, ok := h.summarize(ctx, &chats[i], userID)
		if !ok {
			degraded = true
		}
		summaries = append(summaries, row)
	}
	return summaries, degraded
}

func (h *ChatHandler) summarize(ctx context.Context, ch *models.Chat, userID string) (models.ChatSummary, bool) {
	summary := models.ChatSummary{
		ChatID:      ch.ID,
		DisplayName: h.chatService.PeerName(ch, userID),
	}

	meta, err := h.metadata.Get(ctx, ch.ID)
	if err != nil {
		log.Printf("Degrading chat %s row: metadata unavailable: %v", ch.ID, err)
		return summary, false
	}
	wm, err := h.watermarks.Get(ctx, ch.ID, userID)
	if err != nil {
		log.Printf("Degrading chat %s row: watermark unavailable: %v", ch.ID, err)
		return summary, false
	}

	if meta != nil {
		summary.LastMessage = meta.LastMessage
		summary.LastUpdatedAt = meta.UpdatedAt
	}
	summary.HasUnread = chat.HasUnread(meta, wm, userID)
	return summary, true
}

// GetMessages returns the chat's current ordered message set.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	chatID := c.Params("id")
	if !validation.ValidateChatID(chatID) {
		return httpx.BadRequest(c, "invalid_chat_id", "Invalid chat id")
	}
	if ok, err := h.chatService.CanAccess(chatID, userID); err != nil || !ok {
		return httpx.Forbidden(c, "forbidden_chat", "Not a participant of this chat")
	}

	msgs, err := h.messages.Snapshot(c.Context(), chatID)
	if err != nil {
		if errors.Is(err, store.ErrStoreUnavailable) {
			return httpx.Unavailable(c, "store_unavailable", "Message store unavailable")
		}
		return httpx.Internal(c, "fetch_messages_failed")
	}

	responses := make([]models.MessageResponse, len(msgs))
	for i := range msgs {
		responses[i] = msgs[i].ToResponse()
	}
	return c.JSON(fiber.Map{"messages": responses, "count": len(responses)})
}

type SendMessageInput struct {
	Text string `json:"text"`
}

// SendMessage appends to the chat's log and touches its metadata once
// the append is acknowledged. A failed append writes no metadata and
// returns a recoverable error; the client keeps its input.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	displayName, _ := httpx.LocalString(c, "displayName")

	chatID := c.Params("id")
	if !validation.ValidateChatID(chatID) {
		return httpx.BadRequest(c, "invalid_chat_id", "Invalid chat id")
	}
	if ok, err := h.chatService.CanAccess(chatID, userID); err != nil || !ok {
		return httpx.Forbidden(c, "forbidden_chat", "Not a participant of this chat")
	}

	var input SendMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	text := validation.NormalizeMessageText(input.Text)
	if text == "" {
		return httpx.BadRequest(c, "empty_message", "Message text is required")
	}

	msg, err := h.messages.Append(c.Context(), chatID, text, userID, displayName)
	if err != nil {
		if errors.Is(err, store.ErrStoreUnavailable) {
			return httpx.Unavailable(c, "store_unavailable", "Message store unavailable")
		}
		return httpx.Internal(c, "send_message_failed")
	}

	body := fiber.Map{"message": msg.ToResponse()}
	// Metadata advances only after the append acknowledged. The message
	// landed either way, so a touch failure degrades the reply to a
	// warning instead of failing it.
	if err := h.metadata.Touch(c.Context(), chatID, text, userID, displayName); err != nil {
		log.Printf("Metadata touch failed for chat %s: %v", chatID, err)
		body["warning"] = "metadata_stale"
	}

	h.invalidateParticipants(chatID)
	return c.Status(fiber.StatusCreated).JSON(body)
}

// MarkRead advances the caller's watermark. The path carries no user
// id: watermarks are owner-only.
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	chatID := c.Params("id")
	if !validation.ValidateChatID(chatID) {
		return httpx.BadRequest(c, "invalid_chat_id", "Invalid chat id")
	}
	if ok, err := h.chatService.CanAccess(chatID, userID); err != nil || !ok {
		return httpx.Forbidden(c, "forbidden_chat", "Not a participant of this chat")
	}

	if err := h.watermarks.MarkRead(c.Context(), chatID, userID); err != nil {
		if errors.Is(err, store.ErrStoreUnavailable) {
			return httpx.Unavailable(c, "store_unavailable", "Message store unavailable")
		}
		return httpx.Internal(c, "mark_read_failed")
	}

	h.chatListCache.Invalidate(userID)
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *ChatHandler) invalidateParticipants(chatID string) {
	ch, err := h.chatService.GetChat(chatID)
	if err != nil {
		log.Printf("Error loading chat %s for cache invalidation: %v", chatID, err)
		return
	}
	for _, userID := range h.chatService.ParticipantIDs(ch) {
		if err := h.chatListCache.Invalidate(userID); err != nil {
			log.Printf("Error invalidating chat list for user %s: %v", userID, err)
		}
	}
}
