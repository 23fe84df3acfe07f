package store

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "es:"

// RedisStore is the production EventStore: records live in Redis as
// msgpack blobs, append ids come from a per-path sequence, server
// timestamps come from Redis TIME, and subscriptions ride pub/sub
// channels keyed by path.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) serverNow(ctx context.Context) (int64, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return t.UnixMilli(), nil
}

func (s *RedisStore) Write(ctx context.Context, path string, fields map[string]interface{}) (int64, error) {
	ts, err := s.serverNow(ctx)
	if err != nil {
		return 0, err
	}

	blob, err := msgpack.Marshal(resolveTimestamps(fields, ts))
	if err != nil {
		return 0, err
	}
	if err := s.client.Set(ctx, keyPrefix+path, blob, 0).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.client.Publish(ctx, keyPrefix+path, lastSegment(path)).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ts, nil
}

func (s *RedisStore) Append(ctx context.Context, path string, fields map[string]interface{}) (Record, error) {
	ts, err := s.serverNow(ctx)
	if err != nil {
		return Record{}, err
	}

	seq, err := s.client.Incr(ctx, keyPrefix+path+":seq").Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	rec := Record{
		ID:     fmt.Sprintf("%012d", seq),
		Fields: resolveTimestamps(fields, ts),
	}

	blob, err := msgpack.Marshal(rec.Fields)
	if err != nil {
		return Record{}, err
	}
	if err := s.client.HSet(ctx, keyPrefix+path+":log", rec.ID, blob).Err(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.client.Publish(ctx, keyPrefix+path, rec.ID).Err(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (s *RedisStore) Subscribe(path string, fn func([]Record)) (UnsubscribeFunc, error) {
	ctx := context.Background()

	sub := &memorySub{fn: fn}
	pubsub := s.client.Subscribe(ctx, keyPrefix+path)
	// Force the subscription onto the wire before the initial snapshot,
	// so no write can land between snapshot and subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	snapshot, err := s.snapshot(ctx, path)
	if err != nil {
		pubsub.Close()
		return nil, err
	}
	// One consumer goroutine per subscription, so a local counter is
	// enough to sequence deliveries.
	seq := int64(1)
	deliver([]*memorySub{sub}, seq, snapshot)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range pubsub.Channel() {
			snap, err := s.snapshot(ctx, path)
			if err != nil {
				log.Printf("event store: snapshot failed for %s: %v", path, err)
				continue
			}
			seq++
			deliver([]*memorySub{sub}, seq, snap)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.mu.Lock()
			sub.closed = true
			sub.mu.Unlock()
			pubsub.Close()
			<-done
		})
	}, nil
}

func (s *RedisStore) snapshot(ctx context.Context, path string) ([]Record, error) {
	entries, err := s.client.HGetAll(ctx, keyPrefix+path+":log").Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(entries) > 0 {
		recs := make([]Record, 0, len(entries))
		for id, blob := range entries {
			var fields map[string]interface{}
			if err := msgpack.Unmarshal([]byte(blob), &fields); err != nil {
				log.Printf("event store: skipping undecodable record %s/%s: %v", path, id, err)
				continue
			}
			recs = append(recs, Record{ID: id, Fields: fields})
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
		return recs, nil
	}

	blob, err := s.client.Get(ctx, keyPrefix+path).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var fields map[string]interface{}
	if err := msgpack.Unmarshal(blob, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return []Record{{ID: lastSegment(path), Fields: fields}}, nil
}
