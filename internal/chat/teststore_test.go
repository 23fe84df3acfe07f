package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ntur101/lunchmeet-chat-backend/internal/store"
)

// faultStore wraps a MemoryStore with fault injection and call
// recording, so tests can fail specific paths and count what was
// written where.
type faultStore struct {
	inner *store.MemoryStore

	mu            sync.Mutex
	failWrite     bool
	failAppend    bool
	failSubscribe map[string]bool
	writePaths    []string
	appendPaths   []string
	activeSubs    int
}

func newFaultStore() *faultStore {
	return &faultStore{
		inner:         store.NewMemoryStore(),
		failSubscribe: make(map[string]bool),
	}
}

func (s *faultStore) Write(ctx context.Context, path string, fields map[string]interface{}) (int64, error) {
	s.mu.Lock()
	fail := s.failWrite
	if !fail {
		s.writePaths = append(s.writePaths, path)
	}
	s.mu.Unlock()
	if fail {
		return 0, fmt.Errorf("%w: injected write failure", store.ErrStoreUnavailable)
	}
	return s.inner.Write(ctx, path, fields)
}

func (s *faultStore) Append(ctx context.Context, path string, fields map[string]interface{}) (store.Record, error) {
	s.mu.Lock()
	fail := s.failAppend
	if !fail {
		s.appendPaths = append(s.appendPaths, path)
	}
	s.mu.Unlock()
	if fail {
		return store.Record{}, fmt.Errorf("%w: injected append failure", store.ErrStoreUnavailable)
	}
	return s.inner.Append(ctx, path, fields)
}

func (s *faultStore) Subscribe(path string, fn func([]store.Record)) (store.UnsubscribeFunc, error) {
	s.mu.Lock()
	fail := s.failSubscribe[path]
	s.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("%w: injected subscribe failure", store.ErrStoreUnavailable)
	}

	unsubscribe, err := s.inner.Subscribe(path, fn)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.activeSubs++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		unsubscribe()
		once.Do(func() {
			s.mu.Lock()
			s.activeSubs--
			s.mu.Unlock()
		})
	}, nil
}

func (s *faultStore) setFailWrite(fail bool) {
	s.mu.Lock()
	s.failWrite = fail
	s.mu.Unlock()
}

func (s *faultStore) setFailAppend(fail bool) {
	s.mu.Lock()
	s.failAppend = fail
	s.mu.Unlock()
}

func (s *faultStore) setFailSubscribe(path string, fail bool) {
	s.mu.Lock()
	s.failSubscribe[path] = fail
	s.mu.Unlock()
}

func (s *faultStore) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSubs
}

// countWrites counts Write calls whose path contains the fragment.
func (s *faultStore) countWrites(fragment string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.writePaths {
		if strings.Contains(p, fragment) {
			n++
		}
	}
	return n
}

func (s *faultStore) countAppends(fragment string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.appendPaths {
		if strings.Contains(p, fragment) {
			n++
		}
	}
	return n
}

// testEngine bundles one store with the three typed layers over it.
type testEngine struct {
	store      *faultStore
	log        *MessageLog
	metadata   *MetadataStore
	watermarks *WatermarkStore
}

func newTestEngine() *testEngine {
	s := newFaultStore()
	return &testEngine{
		store:      s,
		log:        NewMessageLog(s),
		metadata:   NewMetadataStore(s),
		watermarks: NewWatermarkStore(s),
	}
}
