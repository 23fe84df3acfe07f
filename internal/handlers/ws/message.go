package ws

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/ntur101/lunchmeet-chat-backend/internal/cache"
	"github.com/ntur101/lunchmeet-chat-backend/internal/chat"
	"github.com/ntur101/lunchmeet-chat-backend/internal/service"
)

// MessageContext provides all dependencies needed for frame processing,
// plus the per-session view-model registry. One context per session: a
// second device of the same user gets its own context, its own
// view-models, and its own subscriptions.
type MessageContext struct {
	UserID      string
	DisplayName string
	SessionID   string
	Client      *ClientConnection
	Hub         *Hub

	ChatService   *service.ChatService
	Messages      *chat.MessageLog
	Metadata      *chat.MetadataStore
	Watermarks    *chat.WatermarkStore
	Aggregator    *chat.Aggregator
	ChatListCache *cache.ChatListCache

	mu         sync.Mutex
	viewModels map[string]*chat.ViewModel
}

// PutView registers an open view-model, replacing (and closing) any
// previous one for the same chat in this session.
func (ctx *MessageContext) PutView(chatID string, vm *chat.ViewModel) {
	ctx.mu.Lock()
	if ctx.viewModels == nil {
		ctx.viewModels = make(map[string]*chat.ViewModel)
	}
	prev := ctx.viewModels[chatID]
	ctx.viewModels[chatID] = vm
	ctx.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// View returns the open view-model for a chat, or nil.
func (ctx *MessageContext) View(chatID string) *chat.ViewModel {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.viewModels[chatID]
}

// RemoveView detaches and returns the view-model for a chat, if open.
func (ctx *MessageContext) RemoveView(chatID string) *chat.ViewModel {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	vm := ctx.viewModels[chatID]
	delete(ctx.viewModels, chatID)
	return vm
}

// CloseAll closes every open view-model. Called on session teardown.
func (ctx *MessageContext) CloseAll() {
	ctx.mu.Lock()
	vms := make([]*chat.ViewModel, 0, len(ctx.viewModels))
	for _, vm := range ctx.viewModels {
		vms = append(vms, vm)
	}
	ctx.viewModels = nil
	ctx.mu.Unlock()

	for _, vm := range vms {
		vm.Close()
	}
}

// Message interface for all WebSocket frame types
type Message interface {
	GetType() string
	Process(ctx *MessageContext) error
}

// SerializedMessage is the wire format wrapper
type SerializedMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorResponse is sent when frame processing fails
type ErrorResponse struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func ToJson(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func FromJson(jsonBytes []byte, msg Message) error {
	return json.Unmarshal(jsonBytes, msg)
}

func CreateMessage(msgType string, typeRegistry map[string]reflect.Type) (Message, error) {
	msgTypeReflect, ok := typeRegistry[msgType]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msgType)
	}

	instance := reflect.New(msgTypeReflect).Interface()
	return instance.(Message), nil
}

// SendError sends an error response to the client
func SendError(client *ClientConnection, code, message, details string) error {
	errResp := ErrorResponse{
		Type:    "error",
		Error:   message,
		Code:    code,
		Details: details,
	}
	return client.WriteJSON(errResp)
}
