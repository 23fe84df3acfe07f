package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process EventStore. It backs tests and serves as
// the dev fallback when no Redis is configured. Its clock is strictly
// increasing, so two writes never share a server timestamp.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]map[string]interface{}
	logs   map[string][]Record
	seq    map[string]int64
	subs   map[string]map[int64]*memorySub
	nextID int64
	lastTS int64
	tick   int64
}

type memorySub struct {
	mu      sync.Mutex
	closed  bool
	lastSeq int64
	fn      func([]Record)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]map[string]interface{}),
		logs:   make(map[string][]Record),
		seq:    make(map[string]int64),
		subs:   make(map[string]map[int64]*memorySub),
	}
}

// now returns ms since epoch, bumped to stay strictly increasing.
func (s *MemoryStore) now() int64 {
	ts := time.Now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

func resolveTimestamps(fields map[string]interface{}, ts int64) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = ts
		} else {
			out[k] = v
		}
	}
	return out
}

func (s *MemoryStore) Write(ctx context.Context, path string, fields map[string]interface{}) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	ts := s.now()
	s.values[path] = resolveTimestamps(fields, ts)
	s.tick++
	seq := s.tick
	subs := s.subscribersLocked(path)
	snapshot := s.snapshotLocked(path)
	s.mu.Unlock()

	deliver(subs, seq, snapshot)
	return ts, nil
}

func (s *MemoryStore) Append(ctx context.Context, path string, fields map[string]interface{}) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	ts := s.now()
	s.seq[path]++
	rec := Record{
		// Zero-padded so lexical id order matches append order.
		ID:     fmt.Sprintf("%012d", s.seq[path]),
		Fields: resolveTimestamps(fields, ts),
	}
	s.logs[path] = append(s.logs[path], rec)
	s.tick++
	seq := s.tick
	subs := s.subscribersLocked(path)
	snapshot := s.snapshotLocked(path)
	s.mu.Unlock()

	deliver(subs, seq, snapshot)
	return rec, nil
}

func (s *MemoryStore) Subscribe(path string, fn func([]Record)) (UnsubscribeFunc, error) {
	sub := &memorySub{fn: fn}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.subs[path] == nil {
		s.subs[path] = make(map[int64]*memorySub)
	}
	s.subs[path][id] = sub
	s.tick++
	seq := s.tick
	snapshot := s.snapshotLocked(path)
	s.mu.Unlock()

	// Initial delivery with the current state, before Subscribe returns.
	// A concurrent write may beat it to the subscriber; the sequence
	// check then drops this older snapshot.
	deliver([]*memorySub{sub}, seq, snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			// Block until any in-flight callback finishes, so no
			// callback runs after unsubscribe returns.
			sub.mu.Lock()
			sub.closed = true
			sub.mu.Unlock()

			s.mu.Lock()
			delete(s.subs[path], id)
			s.mu.Unlock()
		})
	}, nil
}

// snapshotLocked builds the current record set at a path: the append
// log if one exists, otherwise the single value record, otherwise nil.
func (s *MemoryStore) snapshotLocked(path string) []Record {
	if log, ok := s.logs[path]; ok {
		out := make([]Record, len(log))
		copy(out, log)
		return out
	}
	if v, ok := s.values[path]; ok {
		fields := make(map[string]interface{}, len(v))
		for k, val := range v {
			fields[k] = val
		}
		return []Record{{ID: lastSegment(path), Fields: fields}}
	}
	return nil
}

func (s *MemoryStore) subscribersLocked(path string) []*memorySub {
	m := s.subs[path]
	out := make([]*memorySub, 0, len(m))
	for _, sub := range m {
		out = append(out, sub)
	}
	return out
}

// deliver runs outside the store lock so callbacks may issue further
// store calls without deadlocking. Snapshots are stamped with the
// store sequence taken under the store lock; a delivery older than the
// subscriber's last-delivered sequence is dropped, so two writers
// racing to the same subscriber can never make its view go backwards.
func deliver(subs []*memorySub, seq int64, snapshot []Record) {
	for _, sub := range subs {
		sub.mu.Lock()
		if !sub.closed && seq > sub.lastSeq {
			sub.lastSeq = seq
			sub.fn(snapshot)
		}
		sub.mu.Unlock()
	}
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
