package bucketstore

import (
	"context"
	"sync"
	"time"

	"github.com/bramble-dev/bramble/pkg/clock"
)

// GlobalBucket is the distinguished key gating actions against the
// service-wide ceiling. When configured, it is checked in addition to the
// per-route bucket on every admission.
const GlobalBucket = "global"

type waiter chan struct{}

// Bucket is a single keyed quota window. Callers admitted while units
// remain proceed immediately; the rest queue in arrival order and are
// released no earlier than the window reset.
type Bucket struct {
	mu sync.Mutex

	capacity  int32
	remaining int32
	window    time.Duration
	resetAt   time.Time

	waiters []waiter
	timer   clock.Timer

	clock clock.Clock
}

// BucketStore manages the buckets for every known key. Buckets are
// created on first use with the store defaults and later resized once the
// server returns authoritative limits for the key.
type BucketStore struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket

	defaultCapacity int32
	defaultWindow   time.Duration

	clock clock.Clock
}

// NewBucketStore creates a new bucket store. Unknown keys start with the
// given capacity and window.
func NewBucketStore(defaultCapacity int32, defaultWindow time.Duration, c clock.Clock) *BucketStore {
	if c == nil {
		c = clock.New()
	}

	return &BucketStore{
		buckets: make(map[string]*Bucket),

		defaultCapacity: defaultCapacity,
		defaultWindow:   defaultWindow,

		clock: c,
	}
}

// Clock returns the clock the store schedules against.
func (bs *BucketStore) Clock() clock.Clock {
	return bs.clock
}

// Bucket returns the bucket for the key, creating it with the store
// defaults when it does not exist yet.
func (bs *BucketStore) Bucket(key string) *Bucket {
	bs.mu.RLock()
	bucket, ok := bs.buckets[key]
	bs.mu.RUnlock()

	if ok {
		return bucket
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bucket, ok = bs.buckets[key]; ok {
		return bucket
	}

	bucket = newBucket(bs.defaultCapacity, bs.defaultWindow, bs.clock)
	bs.buckets[key] = bucket

	return bucket
}

// SetGlobal configures the service-wide ceiling. Until called, Admit only
// checks the per-route bucket.
func (bs *BucketStore) SetGlobal(capacity int32, window time.Duration) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	bs.buckets[GlobalBucket] = newBucket(capacity, window, bs.clock)
}

// Admit reserves one unit on the key's bucket and, when configured, one on
// the global bucket. It blocks until both have capacity, failing only if
// ctx is canceled while waiting.
func (bs *BucketStore) Admit(ctx context.Context, key string) error {
	if err := bs.Bucket(key).Admit(ctx); err != nil {
		return err
	}

	if key == GlobalBucket {
		return nil
	}

	bs.mu.RLock()
	global, ok := bs.buckets[GlobalBucket]
	bs.mu.RUnlock()

	if !ok {
		return nil
	}

	return global.Admit(ctx)
}

// Update applies authoritative limits from the server to the key's bucket.
func (bs *BucketStore) Update(key string, capacity, remaining int32, window time.Duration, resetAt time.Time) {
	bs.Bucket(key).Update(capacity, remaining, window, resetAt)
}

func newBucket(capacity int32, window time.Duration, c clock.Clock) *Bucket {
	return &Bucket{
		capacity:  capacity,
		remaining: capacity,
		window:    window,
		resetAt:   c.Now().Add(window),

		clock: c,
	}
}

// Admit blocks the caller until a unit may be reserved, then reserves it.
// Queued callers are released in arrival order. Normal exhaustion never
// fails; the only error is ctx cancellation while queued.
func (b *Bucket) Admit(ctx context.Context) error {
	b.mu.Lock()

	now := b.clock.Now()
	b.refill(now)

	if len(b.waiters) == 0 && b.remaining > 0 {
		b.remaining--
		b.mu.Unlock()

		return nil
	}

	w := make(waiter, 1)
	b.waiters = append(b.waiters, w)
	b.arm(now)
	b.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		b.abandon(w)

		return ctx.Err()
	}
}

// Update resizes the bucket from server-reported limits without touching
// queued reservations. A negative remaining leaves the counter alone, a
// non-positive window keeps the current refill period and a zero resetAt
// keeps the current reset point.
func (b *Bucket) Update(capacity, remaining int32, window time.Duration, resetAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if capacity > 0 {
		b.capacity = capacity
	}

	if window > 0 {
		b.window = window
	}

	if remaining >= 0 {
		b.remaining = remaining
	}

	if b.remaining > b.capacity {
		b.remaining = b.capacity
	}

	if !resetAt.IsZero() {
		b.resetAt = resetAt
	}

	b.release()
	b.rearm()
}

// Remaining returns the units left in the current window.
func (b *Bucket) Remaining() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.remaining
}

// Capacity returns the bucket capacity.
func (b *Bucket) Capacity() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.capacity
}

// Waiting returns the number of queued callers.
func (b *Bucket) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.waiters)
}

// refill resets the window once resetAt has passed. Lock must be held.
func (b *Bucket) refill(now time.Time) {
	if now.Before(b.resetAt) {
		return
	}

	b.remaining = b.capacity
	b.resetAt = now.Add(b.window)
}

// release grants units to queued waiters in arrival order. Lock must be
// held.
func (b *Bucket) release() {
	for b.remaining > 0 && len(b.waiters) > 0 {
		w := b.waiters[0]
		b.waiters = b.waiters[1:]
		b.remaining--
		w <- struct{}{}
	}
}

// arm schedules a drain at the window reset if one is not already
// pending. Lock must be held.
func (b *Bucket) arm(now time.Time) {
	if b.timer != nil {
		return
	}

	wait := b.resetAt.Sub(now)
	if wait < 0 {
		wait = 0
	}

	b.timer = b.clock.AfterFunc(wait, b.drain)
}

// rearm replaces any pending drain so it fires at the current resetAt.
// Lock must be held.
func (b *Bucket) rearm() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	if len(b.waiters) > 0 {
		b.arm(b.clock.Now())
	}
}

func (b *Bucket) drain() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.timer = nil

	now := b.clock.Now()
	b.refill(now)
	b.release()

	if len(b.waiters) > 0 {
		b.arm(now)
	}
}

// abandon removes a canceled waiter from the queue. If the waiter was
// granted between cancellation and removal, the unit is handed to the
// next in line instead of being lost.
func (b *Bucket) abandon(w waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, queued := range b.waiters {
		if queued == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)

			return
		}
	}

	select {
	case <-w:
		b.remaining++
		b.release()
	default:
	}
}
