package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/lockgate/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// MemoryRateStore provides process-local rate limiting. It is concurrency-safe.
type MemoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*memoryCounter
	clock func() time.Time
	stop  chan struct{}
	once  sync.Once
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore constructs an in-memory rate store. Call Close to stop
// the background sweep.
func NewMemoryRateStore() *MemoryRateStore {
	return newMemoryRateStore(time.Now, time.Minute)
}

func newMemoryRateStore(clock func() time.Time, sweep time.Duration) *MemoryRateStore {
	store := &MemoryRateStore{
		data:  make(map[string]*memoryCounter),
		clock: clock,
		stop:  make(chan struct{}),
	}
	go store.cleanupLoop(sweep)
	return store
}

func (s *MemoryRateStore) cleanupLoop(every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-tick.C:
			now := s.clock()
			s.mu.Lock()
			for key, counter := range s.data {
				if now.After(counter.windowEnd) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.data[key]
	if !ok || !now.Before(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}
	counter.count++

	return counter.count, counter.windowEnd.Sub(now), nil
}

// Close stops the background sweep.
func (s *MemoryRateStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

type storeRateStore struct {
	store cache.Store
}

// NewDatabaseRateStore builds a RateStore on the shared SQL cache so limits
// hold across server instances.
func NewDatabaseRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
