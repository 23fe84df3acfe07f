package chat

import (
	"log"
	"sync"

	"github.com/ntur101/lunchmeet-chat-backend/internal/models"
	"github.com/ntur101/lunchmeet-chat-backend/internal/store"
)

// Aggregator folds per-chat unread flags into one session-wide signal.
// Each watched chat holds exactly two subscriptions (metadata and the
// user's watermark); both are released exactly once when the chat is
// unwatched or the aggregator closes. The fold is streaming: any single
// chat update recomputes the aggregate immediately, with no barrier
// across chats.
type Aggregator struct {
	userID     string
	metadata   *MetadataStore
	watermarks *WatermarkStore

	mu       sync.Mutex
	watches  map[string]*chatWatch
	onChange func(models.NotificationState)
	closed   bool
}

type chatWatch struct {
	meta     *models.ChatMetadata
	wm       *models.ReadWatermark
	metaSeen bool
	wmSeen   bool
	degraded bool
	stopped  bool
	cancel   []store.UnsubscribeFunc
}

func NewAggregator(userID string, metadata *MetadataStore, watermarks *WatermarkStore) *Aggregator {
	return &Aggregator{
		userID:     userID,
		metadata:   metadata,
		watermarks: watermarks,
		watches:    make(map[string]*chatWatch),
	}
}

// OnChange registers the listener invoked with the new aggregate state
// after every recompute. Set it before the first Watch.
func (a *Aggregator) OnChange(fn func(models.NotificationState)) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// Watch moves a chat into the watched set and opens its two
// subscriptions. If either subscription cannot be opened the chat is
// excluded from the aggregate rather than failing the aggregator.
func (a *Aggregator) Watch(chatID string) {
	a.mu.Lock()
	if a.closed || a.watches[chatID] != nil {
		a.mu.Unlock()
		return
	}
	w := &chatWatch{}
	a.watches[chatID] = w
	a.mu.Unlock()

	// Subscriptions deliver their initial state synchronously, so the
	// aggregator lock must be free here.
	unsubMeta, metaErr := a.metadata.Subscribe(chatID, func(meta *models.ChatMetadata) {
		a.update(w, func() {
			w.meta = meta
			w.metaSeen = true
		})
	})
	var unsubWM store.UnsubscribeFunc
	var wmErr error
	if metaErr == nil {
		unsubWM, wmErr = a.watermarks.Subscribe(chatID, a.userID, func(wm *models.ReadWatermark) {
			a.update(w, func() {
				w.wm = wm
				w.wmSeen = true
			})
		})
	}

	if metaErr != nil || wmErr != nil {
		if unsubMeta != nil {
			unsubMeta()
		}
		log.Printf("notification aggregator: excluding chat %s: %v", chatID, firstErr(metaErr, wmErr))
		a.update(w, func() { w.degraded = true })
		return
	}

	a.mu.Lock()
	if w.stopped || a.closed {
		a.mu.Unlock()
		unsubMeta()
		unsubWM()
		return
	}
	w.cancel = []store.UnsubscribeFunc{unsubMeta, unsubWM}
	a.mu.Unlock()
}

// Unwatch removes a chat from the watched set, releasing both of its
// subscriptions. Safe to call for chats that were never watched.
func (a *Aggregator) Unwatch(chatID string) {
	a.mu.Lock()
	w := a.watches[chatID]
	if w == nil {
		a.mu.Unlock()
		return
	}
	delete(a.watches, chatID)
	w.stopped = true
	cancel := w.cancel
	w.cancel = nil
	state, notify := a.foldLocked()
	a.mu.Unlock()

	for _, stop := range cancel {
		stop()
	}
	if notify != nil {
		notify(state)
	}
}

// Close tears down every watched chat. Called when the session ends;
// all subscriptions are released at that point.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	var cancel []store.UnsubscribeFunc
	for _, w := range a.watches {
		w.stopped = true
		cancel = append(cancel, w.cancel...)
		w.cancel = nil
	}
	a.watches = make(map[string]*chatWatch)
	a.mu.Unlock()

	for _, stop := range cancel {
		stop()
	}
}

// State returns the current aggregate. Degraded chats are absent from
// the per-chat breakdown and contribute nothing to the OR.
func (a *Aggregator) State() models.NotificationState {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, _ := a.foldLocked()
	return state
}

func (a *Aggregator) update(w *chatWatch, apply func()) {
	a.mu.Lock()
	if w.stopped {
		a.mu.Unlock()
		return
	}
	apply()
	state, notify := a.foldLocked()
	a.mu.Unlock()

	if notify != nil {
		notify(state)
	}
}

func (a *Aggregator) foldLocked() (models.NotificationState, func(models.NotificationState)) {
	state := models.NotificationState{
		PerChatUnread: make(map[string]bool, len(a.watches)),
	}
	for chatID, w := range a.watches {
		if w.degraded || !w.metaSeen || !w.wmSeen {
			continue
		}
		unread := HasUnread(w.meta, w.wm, a.userID)
		state.PerChatUnread[chatID] = unread
		if unread {
			state.AnyUnread = true
		}
	}
	return state, a.onChange
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
