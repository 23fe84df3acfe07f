package chat

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/ntur101/lunchmeet-chat-backend/internal/store"
)

// View-model states.
const (
	StateLoading = "loading"
	StateReady   = "ready"
	StateClosed  = "closed"
)

// ViewModel is the controller for one open chat view. While READY it
// subscribes to the message log, marks the chat read on entry and on
// every arriving message, and exposes Send. After Close no further
// watermark writes happen, even if messages keep arriving server-side.
//
// Two views of the same chat get two independent ViewModels with
// independent subscriptions; closing one never affects the other.
type ViewModel struct {
	chatID   string
	userID   string
	userName string

	log        *MessageLog
	metadata   *MetadataStore
	watermarks *WatermarkStore

	mu          sync.Mutex
	state       string
	confirmed   []models.Message
	pending     []models.Message
	unsubscribe store.UnsubscribeFunc
	onMessages  func([]models.Message)
}

func NewViewModel(chatID, userID, userName string, log *MessageLog, metadata *MetadataStore, watermarks *WatermarkStore) *ViewModel {
	return &ViewModel{
		chatID:     chatID,
		userID:     userID,
		userName:   userName,
		log:        log,
		metadata:   metadata,
		watermarks: watermarks,
		state:      StateLoading,
	}
}

// OnMessages registers the listener invoked with the merged ordered
// message set on every change. Set it before Open.
func (vm *ViewModel) OnMessages(fn func([]models.Message)) {
	vm.mu.Lock()
	vm.onMessages = fn
	vm.mu.Unlock()
}

// Open transitions LOADING -> READY: subscribes to the message log and
// writes the first watermark. A subscribe failure leaves the view in
// LOADING and is returned; a watermark failure is logged, since the
// view is already usable.
func (vm *ViewModel) Open(ctx context.Context) error {
	vm.mu.Lock()
	if vm.state != StateLoading {
		vm.mu.Unlock()
		return ErrChatClosed
	}
	vm.mu.Unlock()

	unsubscribe, err := vm.log.Subscribe(vm.chatID, vm.handleMessages)
	if err != nil {
		return err
	}

	vm.mu.Lock()
	if vm.state == StateClosed {
		vm.mu.Unlock()
		unsubscribe()
		return ErrChatClosed
	}
	vm.unsubscribe = unsubscribe
	vm.state = StateReady
	vm.mu.Unlock()

	if err := vm.watermarks.MarkRead(ctx, vm.chatID, vm.userID); err != nil {
		log.Printf("chat %s: mark read on open failed for user %s: %v", vm.chatID, vm.userID, err)
	}
	return nil
}

func (vm *ViewModel) handleMessages(msgs []models.Message) {
	vm.mu.Lock()
	if vm.state == StateClosed {
		vm.mu.Unlock()
		return
	}
	vm.confirmed = msgs
	vm.reconcileLocked()
	merged := vm.mergedLocked()
	emit := vm.onMessages
	ready := vm.state == StateReady
	vm.mu.Unlock()

	if emit != nil {
		emit(merged)
	}
	// A message arriving while the chat is open must not count as
	// unread, so the watermark advances with every delivery.
	if ready {
		if err := vm.watermarks.MarkRead(context.Background(), vm.chatID, vm.userID); err != nil {
			log.Printf("chat %s: mark read on arrival failed for user %s: %v", vm.chatID, vm.userID, err)
		}
	}
}

// reconcileLocked drops optimistic entries whose store echo has landed.
func (vm *ViewModel) reconcileLocked() {
	if len(vm.pending) == 0 {
		return
	}
	landed := make(map[string]bool, len(vm.confirmed))
	for i := range vm.confirmed {
		if vm.confirmed[i].ClientID != "" {
			landed[vm.confirmed[i].ClientID] = true
		}
	}
	kept := vm.pending[:0]
	for _, p := range vm.pending {
		if !landed[p.ClientID] {
			kept = append(kept, p)
		}
	}
	vm.pending = kept
}

func (vm *ViewModel) mergedLocked() []models.Message {
	merged := make([]models.Message, 0, len(vm.confirmed)+len(vm.pending))
	merged = append(merged, vm.confirmed...)
	merged = append(merged, vm.pending...)
	sortMessages(merged)
	return merged
}

// Send validates locally, shows the message optimistically, appends it
// to the log, and touches the chat metadata only after the append is
// acknowledged. On failure the optimistic entry is withdrawn and the
// error returned; the caller keeps the input text.
func (vm *ViewModel) Send(ctx context.Context, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	clientID := uuid.NewString()
	optimistic := models.Message{
		ChatID:     vm.chatID,
		ClientID:   clientID,
		SenderID:   vm.userID,
		SenderName: vm.userName,
		Text:       text,
		ClientTime: time.Now().UnixMilli(),
		Pending:    true,
	}

	vm.mu.Lock()
	if vm.state != StateReady {
		vm.mu.Unlock()
		return nil, ErrChatClosed
	}
	vm.pending = append(vm.pending, optimistic)
	merged := vm.mergedLocked()
	emit := vm.onMessages
	vm.mu.Unlock()
	if emit != nil {
		emit(merged)
	}

	msg, err := vm.log.AppendWithClientID(ctx, vm.chatID, clientID, optimistic.ClientTime, text, vm.userID, vm.userName)

	vm.mu.Lock()
	if err != nil {
		vm.dropPendingLocked(clientID)
	} else {
		// The subscription echo may have landed already; if not, fold
		// the acknowledged message in now.
		vm.dropPendingLocked(clientID)
		if !vm.hasConfirmedLocked(msg.ID) {
			vm.confirmed = append(vm.confirmed, *msg)
			sortMessages(vm.confirmed)
		}
	}
	merged = vm.mergedLocked()
	emit = vm.onMessages
	closed := vm.state == StateClosed
	vm.mu.Unlock()
	if emit != nil && !closed {
		emit(merged)
	}

	if err != nil {
		return nil, err
	}
	if err := vm.metadata.Touch(ctx, vm.chatID, text, vm.userID, vm.userName); err != nil {
		return msg, err
	}
	return msg, nil
}

func (vm *ViewModel) dropPendingLocked(clientID string) {
	kept := vm.pending[:0]
	for _, p := range vm.pending {
		if p.ClientID != clientID {
			kept = append(kept, p)
		}
	}
	vm.pending = kept
}

func (vm *ViewModel) hasConfirmedLocked(id string) bool {
	for i := range vm.confirmed {
		if vm.confirmed[i].ID == id {
			return true
		}
	}
	return false
}

// MarkRead re-writes the watermark; the UI calls this on an explicit
// foreground signal. Only valid while READY.
func (vm *ViewModel) MarkRead(ctx context.Context) error {
	vm.mu.Lock()
	ready := vm.state == StateReady
	vm.mu.Unlock()
	if !ready {
		return ErrChatClosed
	}
	return vm.watermarks.MarkRead(ctx, vm.chatID, vm.userID)
}

// Messages returns the current merged ordered set.
func (vm *ViewModel) Messages() []models.Message {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.mergedLocked()
}

// State returns the view-model state.
func (vm *ViewModel) State() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state
}

// ChatID returns the chat this view is bound to.
func (vm *ViewModel) ChatID() string {
	return vm.chatID
}

// Close transitions to CLOSED and releases the log subscription.
// Idempotent; no watermark write happens after it returns.
func (vm *ViewModel) Close() {
	vm.mu.Lock()
	if vm.state == StateClosed {
		vm.mu.Unlock()
		return
	}
	vm.state = StateClosed
	unsubscribe := vm.unsubscribe
	vm.unsubscribe = nil
	vm.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
