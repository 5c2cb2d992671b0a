package bucketstore

import (
	"context"
	"testing"
	"time"

	"github.com/bramble-dev/bramble/pkg/clock"
)

func waitForQueued(t *testing.T, bucket *Bucket, count int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for bucket.Waiting() < count {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d queued callers, have %d", count, bucket.Waiting())
		}

		time.Sleep(time.Millisecond)
	}
}

func expectAdmission(t *testing.T, results chan int, expected int) {
	t.Helper()

	select {
	case got := <-results:
		if got != expected {
			t.Fatalf("Expected caller %d to be admitted, but got %d", expected, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for caller %d to be admitted", expected)
	}
}

func expectNoAdmission(t *testing.T, results chan int) {
	t.Helper()

	select {
	case got := <-results:
		t.Fatalf("Expected no admission, but caller %d was admitted", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBucketAdmitWithinCapacity(t *testing.T) {
	mock := clock.NewMock()
	store := NewBucketStore(3, time.Second, mock)

	for i := 0; i < 3; i++ {
		if err := store.Admit(context.Background(), "message-send:1"); err != nil {
			t.Fatalf("Unexpected error on admission %d: %v", i, err)
		}
	}

	if remaining := store.Bucket("message-send:1").Remaining(); remaining != 0 {
		t.Errorf("Expected 0 remaining, but got %d", remaining)
	}
}

func TestBucketQueuesFIFO(t *testing.T) {
	mock := clock.NewMock()
	store := NewBucketStore(1, time.Second, mock)
	bucket := store.Bucket("k")

	if err := bucket.Admit(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	results := make(chan int, 3)

	for i := 1; i <= 3; i++ {
		i := i

		go func() {
			if err := bucket.Admit(context.Background()); err == nil {
				results <- i
			}
		}()

		waitForQueued(t, bucket, i)
	}

	expectNoAdmission(t, results)

	// Each window releases exactly one waiter, in arrival order.
	for i := 1; i <= 3; i++ {
		mock.Advance(time.Second)
		expectAdmission(t, results, i)
		expectNoAdmission(t, results)
	}
}

func TestBucketAtMostCapacityPerWindow(t *testing.T) {
	mock := clock.NewMock()
	store := NewBucketStore(2, time.Second, mock)
	bucket := store.Bucket("k")

	for i := 0; i < 2; i++ {
		if err := bucket.Admit(context.Background()); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	results := make(chan int, 1)

	go func() {
		if err := bucket.Admit(context.Background()); err == nil {
			results <- 3
		}
	}()

	waitForQueued(t, bucket, 1)
	expectNoAdmission(t, results)

	mock.Advance(time.Second)
	expectAdmission(t, results, 3)
}

func TestBucketAdmitCanceledWhileQueued(t *testing.T) {
	mock := clock.NewMock()
	store := NewBucketStore(1, time.Second, mock)
	bucket := store.Bucket("k")

	if err := bucket.Admit(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)

	go func() {
		errs <- bucket.Admit(ctx)
	}()

	waitForQueued(t, bucket, 1)

	results := make(chan int, 1)

	go func() {
		if err := bucket.Admit(context.Background()); err == nil {
			results <- 2
		}
	}()

	waitForQueued(t, bucket, 2)

	cancel()

	select {
	case err := <-errs:
		if err != context.Canceled {
			t.Fatalf("Expected context.Canceled, but got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for canceled admission to return")
	}

	// The canceled waiter must not consume the released unit.
	mock.Advance(time.Second)
	expectAdmission(t, results, 2)
}

func TestBucketUpdateResize(t *testing.T) {
	mock := clock.NewMock()
	store := NewBucketStore(1, time.Second, mock)
	bucket := store.Bucket("k")

	if err := bucket.Admit(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	results := make(chan int, 1)

	go func() {
		if err := bucket.Admit(context.Background()); err == nil {
			results <- 1
		}
	}()

	waitForQueued(t, bucket, 1)

	// The server reports a larger bucket with units to spare; the queued
	// caller is released without waiting for the reset.
	store.Update("k", 5, 3, 0, mock.Now().Add(time.Second))

	expectAdmission(t, results, 1)

	if capacity := bucket.Capacity(); capacity != 5 {
		t.Errorf("Expected capacity 5, but got %d", capacity)
	}

	if remaining := bucket.Remaining(); remaining != 2 {
		t.Errorf("Expected 2 remaining, but got %d", remaining)
	}
}

func TestBucketUpdateClampsRemaining(t *testing.T) {
	mock := clock.NewMock()
	store := NewBucketStore(5, time.Second, mock)

	store.Update("k", 2, 4, 0, time.Time{})

	if remaining := store.Bucket("k").Remaining(); remaining != 2 {
		t.Errorf("Expected remaining clamped to 2, but got %d", remaining)
	}
}

func TestBucketUpdateCorrectsWindow(t *testing.T) {
	mock := clock.NewMock()
	store := NewBucketStore(1, 10*time.Second, mock)
	bucket := store.Bucket("k")

	if err := bucket.Admit(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The server reports a much shorter window; refills from here on must
	// follow it, not the store default.
	store.Update("k", 1, 0, 2*time.Second, mock.Now().Add(2*time.Second))

	results := make(chan int, 2)

	for i := 1; i <= 2; i++ {
		i := i

		go func() {
			if err := bucket.Admit(context.Background()); err == nil {
				results <- i
			}
		}()

		waitForQueued(t, bucket, 1)
		expectNoAdmission(t, results)

		mock.Advance(2 * time.Second)
		expectAdmission(t, results, i)
	}
}

func TestStoreGlobalBucket(t *testing.T) {
	mock := clock.NewMock()
	store := NewBucketStore(10, time.Second, mock)
	store.SetGlobal(1, time.Second)

	if err := store.Admit(context.Background(), "message-send:1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// A different route is still gated by the shared global ceiling.
	results := make(chan int, 1)

	go func() {
		if err := store.Admit(context.Background(), "message-send:2"); err == nil {
			results <- 2
		}
	}()

	waitForQueued(t, store.Bucket(GlobalBucket), 1)
	expectNoAdmission(t, results)

	mock.Advance(time.Second)
	expectAdmission(t, results, 2)
}

func TestStoreDefaultBucketCreation(t *testing.T) {
	mock := clock.NewMock()
	store := NewBucketStore(7, time.Minute, mock)

	bucket := store.Bucket("fresh")

	if bucket.Capacity() != 7 {
		t.Errorf("Expected capacity 7, but got %d", bucket.Capacity())
	}

	if again := store.Bucket("fresh"); again != bucket {
		t.Error("Expected the same bucket on repeat lookup")
	}
}
