package ws

import (
	"context"
	"log"

	"github.com/ntur101/lunchmeet-chat-backend/internal/chat"
	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/ntur101/lunchmeet-chat-backend/internal/validation"
)

// Outbound frames.

// NotificationFrame carries the aggregate unread state to the client.
type NotificationFrame struct {
	Type          string          `json:"type"`
	PerChatUnread map[string]bool `json:"per_chat_unread"`
	AnyUnread     bool            `json:"any_unread"`
}

func NewNotificationFrame(state models.NotificationState) NotificationFrame {
	return NotificationFrame{
		Type:          "notification",
		PerChatUnread: state.PerChatUnread,
		AnyUnread:     state.AnyUnread,
	}
}

// MessagesFrame streams the full ordered message set of an open chat.
type MessagesFrame struct {
	Type     string                   `json:"type"`
	ChatID   string                   `json:"chat_id"`
	Messages []models.MessageResponse `json:"messages"`
}

func NewMessagesFrame(chatID string, msgs []models.Message) MessagesFrame {
	responses := make([]models.MessageResponse, len(msgs))
	for i := range msgs {
		responses[i] = msgs[i].ToResponse()
	}
	return MessagesFrame{Type: "messages", ChatID: chatID, Messages: responses}
}

// SentFrame acknowledges a send with the store-confirmed message.
// Warning is set when the message landed but a follow-up write (the
// metadata touch) failed.
type SentFrame struct {
	Type    string                 `json:"type"`
	ChatID  string                 `json:"chat_id"`
	Message models.MessageResponse `json:"message"`
	Warning string                 `json:"warning,omitempty"`
}

// Inbound frames.

// MessageOpenChat brings a chat into the foreground: it opens a
// view-model, streams messages, and starts advancing the read
// watermark. This frame is the explicit visibility signal; a mounted
// but unopened chat never marks itself read.
type MessageOpenChat struct {
	ChatID string `json:"chat_id"`
}

func (msg *MessageOpenChat) GetType() string {
	return "open_chat"
}

func (msg *MessageOpenChat) Process(ctx *MessageContext) error {
	if !validation.ValidateChatID(msg.ChatID) {
		return SendError(ctx.Client, "invalid_chat_id", "Invalid chat id", "")
	}
	ok, err := ctx.ChatService.CanAccess(msg.ChatID, ctx.UserID)
	if err != nil {
		return SendError(ctx.Client, "chat_lookup_failed", "Failed to look up chat", err.Error())
	}
	if !ok {
		return SendError(ctx.Client, "forbidden_chat", "Not a participant of this chat", "")
	}

	vm := chat.NewViewModel(msg.ChatID, ctx.UserID, ctx.DisplayName, ctx.Messages, ctx.Metadata, ctx.Watermarks)
	client := ctx.Client
	chatID := msg.ChatID
	vm.OnMessages(func(msgs []models.Message) {
		if err := client.WriteJSON(NewMessagesFrame(chatID, msgs)); err != nil {
			log.Printf("Error streaming messages for chat %s to user %s: %v", chatID, ctx.UserID, err)
		}
	})

	if err := vm.Open(context.Background()); err != nil {
		return SendError(ctx.Client, "open_chat_failed", "Failed to open chat", err.Error())
	}
	ctx.PutView(msg.ChatID, vm)

	// Opening wrote the watermark, so the cached chat list is stale.
	if err := ctx.ChatListCache.Invalidate(ctx.UserID); err != nil {
		log.Printf("Error invalidating chat list for user %s: %v", ctx.UserID, err)
	}
	return nil
}

// MessageCloseChat dismisses an open chat view. After this no watermark
// writes happen for the chat, even if messages keep arriving.
type MessageCloseChat struct {
	ChatID string `json:"chat_id"`
}

func (msg *MessageCloseChat) GetType() string {
	return "close_chat"
}

func (msg *MessageCloseChat) Process(ctx *MessageContext) error {
	if vm := ctx.RemoveView(msg.ChatID); vm != nil {
		vm.Close()
	}
	return nil
}

// MessageSendChat sends a message through the open view-model.
type MessageSendChat struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (msg *MessageSendChat) GetType() string {
	return "send_message"
}

func (msg *MessageSendChat) Process(ctx *MessageContext) error {
	vm := ctx.View(msg.ChatID)
	if vm == nil {
		return SendError(ctx.Client, "chat_not_open", "Open the chat before sending", "")
	}

	text := validation.NormalizeMessageText(msg.Text)
	sent, err := vm.Send(context.Background(), text)
	if err == chat.ErrEmptyMessage {
		return SendError(ctx.Client, "empty_message", "Message text is empty", "")
	}
	if err != nil && sent == nil {
		// The append never landed; the client keeps its input.
		return SendError(ctx.Client, "send_failed", "Failed to send message", err.Error())
	}
	frame := SentFrame{Type: "sent", ChatID: msg.ChatID, Message: sent.ToResponse()}
	if err != nil {
		// Message landed but the metadata touch failed.
		log.Printf("Metadata touch failed for chat %s: %v", msg.ChatID, err)
		frame.Warning = "metadata_stale"
	}

	ctx.invalidateParticipantLists(msg.ChatID)
	return ctx.Client.WriteJSON(frame)
}

// MessageMarkRead advances the caller's watermark without requiring an
// open view, e.g. from the list screen. Watermarks are owner-only: the
// frame carries no user id, the session identity is used.
type MessageMarkRead struct {
	ChatID string `json:"chat_id"`
}

func (msg *MessageMarkRead) GetType() string {
	return "mark_read"
}

func (msg *MessageMarkRead) Process(ctx *MessageContext) error {
	if vm := ctx.View(msg.ChatID); vm != nil {
		if err := vm.MarkRead(context.Background()); err != nil {
			return SendError(ctx.Client, "mark_read_failed", "Failed to mark chat read", err.Error())
		}
	} else {
		ok, err := ctx.ChatService.CanAccess(msg.ChatID, ctx.UserID)
		if err != nil || !ok {
			return SendError(ctx.Client, "forbidden_chat", "Not a participant of this chat", "")
		}
		if err := ctx.Watermarks.MarkRead(context.Background(), msg.ChatID, ctx.UserID); err != nil {
			return SendError(ctx.Client, "mark_read_failed", "Failed to mark chat read", err.Error())
		}
	}

	if err := ctx.ChatListCache.Invalidate(ctx.UserID); err != nil {
		log.Printf("Error invalidating chat list for user %s: %v", ctx.UserID, err)
	}
	return nil
}

// invalidateParticipantLists drops the cached chat list of everyone in
// the chat after a send changed its last message.
func (ctx *MessageContext) invalidateParticipantLists(chatID string) {
	c, err := ctx.ChatService.GetChat(chatID)
	if err != nil {
		log.Printf("Error loading chat %s for cache invalidation: %v", chatID, err)
		return
	}
	for _, userID := range ctx.ChatService.ParticipantIDs(c) {
		if err := ctx.ChatListCache.Invalidate(userID); err != nil {
			log.Printf("Error invalidating chat list for user %s: %v", userID, err)
		}
	}
}
