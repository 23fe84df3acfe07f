package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/ntur101/lunchmeet-chat-backend/internal/store"
)

func newTestView(engine *testEngine) *ViewModel {
	return NewViewModel("alice--bob", "bob", "Bob", engine.log, engine.metadata, engine.watermarks)
}

func TestViewModelOpenMarksRead(t *testing.T) {
	engine := newTestEngine()
	vm := newTestView(engine)
	defer vm.Close()

	if vm.State() != StateLoading {
		t.Fatalf("fresh view should be loading, got %s", vm.State())
	}

	if err := vm.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vm.State() != StateReady {
		t.Errorf("expected ready after open, got %s", vm.State())
	}
	if got := engine.store.countWrites("readStatus/bob"); got != 1 {
		t.Errorf("open should write the watermark exactly once, got %d", got)
	}

	wm, err := engine.watermarks.Get(context.Background(), "alice--bob", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wm == nil {
		t.Fatal("expected watermark after open")
	}
}

func TestViewModelOpenSubscribeFailure(t *testing.T) {
	engine := newTestEngine()
	engine.store.setFailSubscribe(store.MessagesPath("alice--bob"), true)
	vm := newTestView(engine)

	err := vm.Open(context.Background())
	if !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if vm.State() != StateLoading {
		t.Errorf("failed open should leave the view loading, got %s", vm.State())
	}
	if got := engine.store.countWrites("readStatus/bob"); got != 0 {
		t.Errorf("failed open must not write the watermark, got %d writes", got)
	}
}

func TestViewModelMarksReadOnArrival(t *testing.T) {
	engine := newTestEngine()
	vm := newTestView(engine)
	defer vm.Close()

	if err := vm.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := engine.store.countWrites("readStatus/bob")

	// Alice sends while bob has the chat open.
	if _, err := engine.log.Append(context.Background(), "alice--bob", "lunch?", "alice", "Alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := engine.store.countWrites("readStatus/bob"); got != before+1 {
		t.Errorf("arrival should advance the watermark: %d writes, want %d", got, before+1)
	}
	msgs := vm.Messages()
	if len(msgs) != 1 || msgs[0].Text != "lunch?" {
		t.Errorf("delivered message missing from view: %v", msgs)
	}
}

func TestViewModelNoMarkReadAfterClose(t *testing.T) {
	engine := newTestEngine()
	vm := newTestView(engine)

	if err := vm.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vm.Close()
	if vm.State() != StateClosed {
		t.Fatalf("expected closed, got %s", vm.State())
	}
	before := engine.store.countWrites("readStatus/bob")

	// Messages keep arriving server-side; the closed view must not
	// touch the watermark.
	if _, err := engine.log.Append(context.Background(), "alice--bob", "too late", "alice", "Alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := engine.store.countWrites("readStatus/bob"); got != before {
		t.Errorf("watermark written after close: %d writes, want %d", got, before)
	}

	// Close is idempotent.
	vm.Close()
}

func TestViewModelCloseReleasesSubscription(t *testing.T) {
	engine := newTestEngine()
	vm := newTestView(engine)

	if err := vm.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := engine.store.active(); got != 1 {
		t.Fatalf("open view holds one log subscription, got %d", got)
	}
	vm.Close()
	if got := engine.store.active(); got != 0 {
		t.Errorf("close must release the subscription, got %d", got)
	}
}

func TestViewModelSendEmptyRejectedLocally(t *testing.T) {
	engine := newTestEngine()
	vm := newTestView(engine)
	defer vm.Close()

	if err := vm.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, text := range []string{"", "   ", "\n\t "} {
		if _, err := vm.Send(context.Background(), text); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q): expected ErrEmptyMessage, got %v", text, err)
		}
	}
	if got := engine.store.countAppends("messages"); got != 0 {
		t.Errorf("empty send must not reach the store, got %d appends", got)
	}
	if got := engine.store.countWrites("metadata"); got != 0 {
		t.Errorf("empty send must not touch metadata, got %d writes", got)
	}
}

func TestViewModelSendBeforeOpen(t *testing.T) {
	engine := newTestEngine()
	vm := newTestView(engine)

	if _, err := vm.Send(context.Background(), "hello"); !errors.Is(err, ErrChatClosed) {
		t.Errorf("expected ErrChatClosed before open, got %v", err)
	}
}

func TestViewModelSendOptimisticThenConfirmed(t *testing.T) {
	engine := newTestEngine()
	vm := newTestView(engine)
	defer vm.Close()

	var emissions [][]models.Message
	vm.OnMessages(func(msgs []models.Message) {
		emissions = append(emissions, msgs)
	})
	if err := vm.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	emissions = nil

	msg, err := vm.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID == "" || !msg.Confirmed() {
		t.Errorf("send should return the confirmed message, got %+v", msg)
	}

	if len(emissions) == 0 {
		t.Fatal("send should emit the optimistic state")
	}
	first := emissions[0]
	if len(first) != 1 || !first[0].Pending || first[0].Text != "hello" {
		t.Errorf("first emission should carry the pending copy, got %v", first)
	}

	// The echo replaces the optimistic copy: one message, confirmed,
	// never duplicated.
	final := vm.Messages()
	if len(final) != 1 {
		t.Fatalf("expected exactly one message after reconciliation, got %d", len(final))
	}
	if final[0].Pending || !final[0].Confirmed() {
		t.Errorf("message should be confirmed after the ack, got %+v", final[0])
	}
	if final[0].ClientID != first[0].ClientID {
		t.Errorf("echo not matched to the optimistic copy: %q vs %q", final[0].ClientID, first[0].ClientID)
	}

	// Metadata was touched exactly once, after the ack.
	if got := engine.store.countWrites("metadata"); got != 1 {
		t.Errorf("expected one metadata touch per send, got %d", got)
	}
	meta, err := engine.metadata.Get(context.Background(), "alice--bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta == nil || meta.LastMessage != "hello" || meta.LastMessageSender != "bob" {
		t.Errorf("metadata summary wrong: %+v", meta)
	}
}

func TestViewModelSendFailureWithdrawsOptimistic(t *testing.T) {
	engine := newTestEngine()
	vm := newTestView(engine)
	defer vm.Close()

	if err := vm.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine.store.setFailAppend(true)

	_, err := vm.Send(context.Background(), "hello")
	if !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	if msgs := vm.Messages(); len(msgs) != 0 {
		t.Errorf("failed send must withdraw the optimistic copy, got %v", msgs)
	}
	// No append, no metadata: the chat's last message is unchanged.
	if got := engine.store.countWrites("metadata"); got != 0 {
		t.Errorf("failed send must not touch metadata, got %d writes", got)
	}

	// The view stays usable: a retry after recovery goes through.
	engine.store.setFailAppend(false)
	if _, err := vm.Send(context.Background(), "hello again"); err != nil {
		t.Fatalf("retry after recovery failed: %v", err)
	}
	if msgs := vm.Messages(); len(msgs) != 1 {
		t.Errorf("expected one message after retry, got %d", len(msgs))
	}
}

func TestViewModelSendTouchesOncePerSend(t *testing.T) {
	engine := newTestEngine()
	vm := newTestView(engine)
	defer vm.Close()

	if err := vm.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, text := range []string{"one", "two", "three"} {
		if _, err := vm.Send(context.Background(), text); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := engine.store.countWrites("metadata"); got != 3 {
		t.Errorf("expected one metadata touch per acknowledged send, got %d", got)
	}
}

func TestViewModelMarkRead(t *testing.T) {
	engine := newTestEngine()
	vm := newTestView(engine)

	// Only valid while ready.
	if err := vm.MarkRead(context.Background()); !errors.Is(err, ErrChatClosed) {
		t.Errorf("expected ErrChatClosed before open, got %v", err)
	}

	if err := vm.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := vm.MarkRead(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	vm.Close()
	if err := vm.MarkRead(context.Background()); !errors.Is(err, ErrChatClosed) {
		t.Errorf("expected ErrChatClosed after close, got %v", err)
	}
}

// Two independent views of the same chat: closing one leaves the other
// live and reading.
func TestViewModelIndependentViews(t *testing.T) {
	engine := newTestEngine()
	vm1 := newTestView(engine)
	vm2 := newTestView(engine)
	defer vm2.Close()

	if err := vm1.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := vm2.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vm1.Close()
	before := engine.store.countWrites("readStatus/bob")

	if _, err := engine.log.Append(context.Background(), "alice--bob", "hi", "alice", "Alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := engine.store.countWrites("readStatus/bob"); got != before+1 {
		t.Errorf("surviving view should still mark read: %d writes, want %d", got, before+1)
	}
	if msgs := vm2.Messages(); len(msgs) != 1 {
		t.Errorf("surviving view missed the delivery: %v", msgs)
	}
	if msgs := vm1.Messages(); len(msgs) != 0 {
		t.Errorf("closed view should not accumulate messages: %v", msgs)
	}
}
