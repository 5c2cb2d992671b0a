package clock

import (
	"testing"
	"time"
)

func TestMockAdvanceFiresInOrder(t *testing.T) {
	m := NewMock()

	fired := make([]int, 0, 3)

	m.AfterFunc(3*time.Second, func() { fired = append(fired, 3) })
	m.AfterFunc(1*time.Second, func() { fired = append(fired, 1) })
	m.AfterFunc(2*time.Second, func() { fired = append(fired, 2) })

	m.Advance(5 * time.Second)

	if len(fired) != 3 || fired[0] != 1 || fired[1] != 2 || fired[2] != 3 {
		t.Errorf("Expected [1 2 3], but got %v", fired)
	}
}

func TestMockAdvancePartial(t *testing.T) {
	m := NewMock()

	fired := 0

	m.AfterFunc(time.Second, func() { fired++ })
	m.AfterFunc(10*time.Second, func() { fired++ })

	m.Advance(time.Second)

	if fired != 1 {
		t.Errorf("Expected 1 fire, but got %d", fired)
	}

	if !m.Now().Equal(time.Unix(1, 0).UTC()) {
		t.Errorf("Expected clock at 1s, but got %v", m.Now())
	}
}

func TestMockStop(t *testing.T) {
	m := NewMock()

	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Expected Stop to report true on a pending timer")
	}

	m.Advance(2 * time.Second)

	if fired {
		t.Error("Expected a stopped timer to not fire")
	}

	if timer.Stop() {
		t.Error("Expected Stop to report false the second time")
	}
}

func TestMockReschedulingTimer(t *testing.T) {
	m := NewMock()

	fired := 0

	var schedule func()
	schedule = func() {
		fired++
		if fired < 3 {
			m.AfterFunc(time.Second, schedule)
		}
	}

	m.AfterFunc(time.Second, schedule)
	m.Advance(5 * time.Second)

	if fired != 3 {
		t.Errorf("Expected 3 fires, but got %d", fired)
	}
}
