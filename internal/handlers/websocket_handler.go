package handlers

import (
	"log"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/ntur101/lunchmeet-chat-backend/internal/cache"
	"github.com/ntur101/lunchmeet-chat-backend/internal/chat"
	"github.com/ntur101/lunchmeet-chat-backend/internal/handlers/ws"
	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/ntur101/lunchmeet-chat-backend/internal/service"
)

type WebSocketHandler struct {
	chatService   *service.ChatService
	messages      *chat.MessageLog
	metadata      *chat.MetadataStore
	watermarks    *chat.WatermarkStore
	chatListCache *cache.ChatListCache
	hub           *ws.Hub
}

func NewWebSocketHandler(chatService *service.ChatService, messages *chat.MessageLog, metadata *chat.MetadataStore, watermarks *chat.WatermarkStore, chatListCache *cache.ChatListCache) *WebSocketHandler {
	return &WebSocketHandler{
		chatService:   chatService,
		messages:      messages,
		metadata:      metadata,
		watermarks:    watermarks,
		chatListCache: chatListCache,
		hub:           ws.NewHub(),
	}
}

// GetHub returns the hub instance (useful for sending messages from other handlers)
func (h *WebSocketHandler) GetHub() *ws.Hub {
	return h.hub
}

// HandleWebSocket runs one client session. The session owns a
// notification aggregator over the user's chat set and a view-model per
// open chat; everything is torn down when the connection drops, which
// is also the moment the session's identity goes away.
func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	userID, _ := c.Locals("userID").(string)
	displayName, _ := c.Locals("displayName").(string)
	if userID == "" {
		c.Close()
		return
	}

	sessionID := uuid.NewString()
	client := h.hub.Register(sessionID, userID, c)

	aggregator := chat.NewAggregator(userID, h.metadata, h.watermarks)
	aggregator.OnChange(func(state models.NotificationState) {
		if err := client.WriteJSON(ws.NewNotificationFrame(state)); err != nil {
			log.Printf("Error pushing notification state to user %s: %v", userID, err)
		}
	})

	chats, err := h.chatService.ListUserChats(userID)
	if err != nil {
		log.Printf("Error loading chat roster for user %s: %v", userID, err)
	}
	for i := range chats {
		aggregator.Watch(chats[i].ID)
	}

	msgCtx := &ws.MessageContext{
		UserID:        userID,
		DisplayName:   displayName,
		SessionID:     sessionID,
		Client:        client,
		Hub:           h.hub,
		ChatService:   h.chatService,
		Messages:      h.messages,
		Metadata:      h.metadata,
		Watermarks:    h.watermarks,
		Aggregator:    aggregator,
		ChatListCache: h.chatListCache,
	}

	defer func() {
		msgCtx.CloseAll()
		aggregator.Close()
		h.hub.Unregister(sessionID)
	}()

	log.Printf("User %s connected via WebSocket (session %s)", userID, sessionID)

	for {
		_, messageBytes, err := c.ReadMessage()
		if err != nil {
			log.Printf("Error reading frame from user %s: %v", userID, err)
			break
		}

		msg, err := ws.Deserialize(messageBytes)
		if err != nil {
			log.Printf("Error deserializing frame from user %s: %v", userID, err)
			ws.SendError(client, "invalid_message", "Invalid message format", err.Error())
			continue
		}

		if err := msg.Process(msgCtx); err != nil {
			log.Printf("Error processing frame %s from user %s: %v", msg.GetType(), userID, err)
			ws.SendError(client, "processing_failed", "Failed to process message", err.Error())
		}
	}

	log.Printf("User %s disconnected from WebSocket (session %s)", userID, sessionID)
}
