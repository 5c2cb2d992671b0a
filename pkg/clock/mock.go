package clock

import (
	"sort"
	"sync"
	"time"
)

// Mock is a Clock whose time only moves when Advance is called. Scheduled
// functions run synchronously, in firing order, during Advance.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

type mockTimer struct {
	mock    *Mock
	when    time.Time
	f       func()
	stopped bool
}

// NewMock creates a Mock starting at the unix epoch.
func NewMock() *Mock {
	return &Mock{now: time.Unix(0, 0).UTC()}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.now
}

func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTimer{
		mock: m,
		when: m.now.Add(d),
		f:    f,
	}

	m.timers = append(m.timers, t)

	return t
}

// Advance moves the clock forward by d, running every function scheduled
// inside the window before returning. Functions run outside the mock lock
// so they may schedule further timers.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		next := m.nextTimer(target)
		if next == nil {
			break
		}

		if next.when.After(m.now) {
			m.now = next.when
		}

		m.remove(next)
		m.mu.Unlock()

		next.f()

		m.mu.Lock()
	}

	m.now = target
	m.mu.Unlock()
}

// nextTimer returns the earliest unstopped timer due at or before target.
// Must be called with the lock held.
func (m *Mock) nextTimer(target time.Time) *mockTimer {
	sort.SliceStable(m.timers, func(i, j int) bool {
		return m.timers[i].when.Before(m.timers[j].when)
	})

	for _, t := range m.timers {
		if !t.stopped && !t.when.After(target) {
			return t
		}
	}

	return nil
}

func (m *Mock) remove(t *mockTimer) {
	for i, candidate := range m.timers {
		if candidate == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)

			return
		}
	}
}

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()

	if t.stopped {
		return false
	}

	t.stopped = true

	for i, candidate := range t.mock.timers {
		if candidate == t {
			t.mock.timers = append(t.mock.timers[:i], t.mock.timers[i+1:]...)

			return true
		}
	}

	return false
}
