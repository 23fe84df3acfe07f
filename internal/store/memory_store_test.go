package store

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStoreWriteAssignsTimestamp(t *testing.T) {
	s := NewMemoryStore()

	ts1, err := s.Write(context.Background(), "chats/a--b/metadata", map[string]interface{}{
		"lastMessage": "hello",
		"updatedAt":   ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts1 <= 0 {
		t.Fatalf("expected positive server timestamp, got %d", ts1)
	}

	ts2, err := s.Write(context.Background(), "chats/a--b/metadata", map[string]interface{}{
		"lastMessage": "again",
		"updatedAt":   ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts2 <= ts1 {
		t.Errorf("server clock must be strictly increasing: got %d then %d", ts1, ts2)
	}
}

func TestMemoryStoreWriteResolvesPlaceholder(t *testing.T) {
	s := NewMemoryStore()

	ts, err := s.Write(context.Background(), "chats/a--b/readStatus/bob", map[string]interface{}{
		"lastReadTime": ServerTimestamp,
		"timestamp":    int64(123),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []Record
	unsubscribe, err := s.Subscribe("chats/a--b/readStatus/bob", func(recs []Record) {
		got = recs
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()

	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if Int64Field(got[0].Fields, "lastReadTime") != ts {
		t.Errorf("placeholder not resolved: got %v, want %d", got[0].Fields["lastReadTime"], ts)
	}
	if Int64Field(got[0].Fields, "timestamp") != 123 {
		t.Errorf("plain field altered: got %v", got[0].Fields["timestamp"])
	}
}

func TestMemoryStoreAppendIDOrder(t *testing.T) {
	s := NewMemoryStore()

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := s.Append(context.Background(), "chats/a--b/messages", map[string]interface{}{
			"text":      "msg",
			"senderId":  "alice",
			"timestamp": ServerTimestamp,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	for i := 1; i < len(ids); i++ {
		if !(ids[i-1] < ids[i]) {
			t.Errorf("ids must increase lexically in append order: %q then %q", ids[i-1], ids[i])
		}
	}
}

func TestMemoryStoreSubscribeInitialFire(t *testing.T) {
	s := NewMemoryStore()

	// Empty path still fires once, with no records.
	fired := 0
	unsubscribe, err := s.Subscribe("chats/a--b/messages", func(recs []Record) {
		fired++
		if len(recs) != 0 {
			t.Errorf("expected empty initial snapshot, got %d records", len(recs))
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fired != 1 {
		t.Errorf("expected initial fire before Subscribe returned, got %d calls", fired)
	}
	unsubscribe()

	// A path with data fires with the full current set.
	if _, err := s.Append(context.Background(), "chats/a--b/messages", map[string]interface{}{"text": "hi", "senderId": "alice"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []Record
	unsubscribe, err = s.Subscribe("chats/a--b/messages", func(recs []Record) {
		got = recs
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()
	if len(got) != 1 {
		t.Errorf("expected 1 record in initial snapshot, got %d", len(got))
	}
}

func TestMemoryStoreSubscribeDeliversAppends(t *testing.T) {
	s := NewMemoryStore()

	var deliveries [][]Record
	unsubscribe, err := s.Subscribe("chats/a--b/messages", func(recs []Record) {
		deliveries = append(deliveries, recs)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()

	for i := 0; i < 2; i++ {
		if _, err := s.Append(context.Background(), "chats/a--b/messages", map[string]interface{}{"text": "hi", "senderId": "alice"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(deliveries) != 3 {
		t.Fatalf("expected 3 deliveries (initial + 2 appends), got %d", len(deliveries))
	}
	if len(deliveries[2]) != 2 {
		t.Errorf("expected final delivery to carry 2 records, got %d", len(deliveries[2]))
	}
}

// A delivery carrying an older store sequence than one the subscriber
// has already seen must be dropped: a writer preempted between the
// store snapshot and the subscriber callback cannot shrink the view a
// faster later writer already delivered.
func TestMemoryStoreStaleDeliveryDropped(t *testing.T) {
	var sizes []int
	sub := &memorySub{fn: func(recs []Record) {
		sizes = append(sizes, len(recs))
	}}

	newer := []Record{{ID: "000000000001"}, {ID: "000000000002"}}
	older := []Record{{ID: "000000000001"}}

	deliver([]*memorySub{sub}, 2, newer)
	deliver([]*memorySub{sub}, 1, older)
	deliver([]*memorySub{sub}, 3, newer)

	if len(sizes) != 2 || sizes[0] != 2 || sizes[1] != 2 {
		t.Errorf("stale delivery reached the subscriber: sizes %v", sizes)
	}
}

func TestMemoryStoreConcurrentAppendsNeverShrink(t *testing.T) {
	s := NewMemoryStore()

	var mu sync.Mutex
	var sizes []int
	unsubscribe, err := s.Subscribe("chats/a--b/messages", func(recs []Record) {
		mu.Lock()
		sizes = append(sizes, len(recs))
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := s.Append(context.Background(), "chats/a--b/messages", map[string]interface{}{
					"text": "msg", "senderId": "alice",
				}); err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(sizes); i++ {
		if sizes[i] < sizes[i-1] {
			t.Fatalf("view shrank: snapshot of %d records after %d", sizes[i], sizes[i-1])
		}
	}
	if last := sizes[len(sizes)-1]; last != writers*perWriter {
		t.Errorf("final snapshot has %d records, want %d", last, writers*perWriter)
	}
}

func TestMemoryStoreUnsubscribeIdempotent(t *testing.T) {
	s := NewMemoryStore()

	fired := 0
	unsubscribe, err := s.Subscribe("chats/a--b/messages", func(recs []Record) {
		fired++
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unsubscribe()
	unsubscribe()

	if _, err := s.Append(context.Background(), "chats/a--b/messages", map[string]interface{}{"text": "hi", "senderId": "alice"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fired != 1 {
		t.Errorf("no callback may run after unsubscribe: got %d calls", fired)
	}
}

func TestMemoryStoreSubscriberIsolation(t *testing.T) {
	s := NewMemoryStore()

	aFired, bFired := 0, 0
	unsubA, err := s.Subscribe("chats/a--b/messages", func(recs []Record) { aFired++ })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unsubB, err := s.Subscribe("chats/a--b/messages", func(recs []Record) { bFired++ })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubB()

	unsubA()
	if _, err := s.Append(context.Background(), "chats/a--b/messages", map[string]interface{}{"text": "hi", "senderId": "alice"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if aFired != 1 {
		t.Errorf("closed subscriber received deliveries: %d", aFired)
	}
	if bFired != 2 {
		t.Errorf("surviving subscriber should see initial + append: got %d", bFired)
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Write(ctx, "p", map[string]interface{}{"x": 1}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Write: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := s.Append(ctx, "p", map[string]interface{}{"x": 1}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Append: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestLastSegment(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"chats/a--b/readStatus/bob", "bob"},
		{"chats/a--b/metadata", "metadata"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := lastSegment(tt.path); got != tt.want {
			t.Errorf("lastSegment(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestInt64FieldWidening(t *testing.T) {
	fields := map[string]interface{}{
		"i64": int64(7), "i": 8, "f64": float64(9), "u32": uint32(10), "missing": "nope",
	}
	tests := []struct {
		key  string
		want int64
	}{
		{"i64", 7}, {"i", 8}, {"f64", 9}, {"u32", 10}, {"missing", 0}, {"absent", 0},
	}
	for _, tt := range tests {
		if got := Int64Field(fields, tt.key); got != tt.want {
			t.Errorf("Int64Field(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}
