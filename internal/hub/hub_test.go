package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"duetto/internal/models"
)

// mockSub records everything the hub sends it.
type mockSub struct {
	id string

	mu      sync.Mutex
	got     [][]byte
	failing bool
	closes  int
}

func (m *mockSub) ID() string { return m.id }

func (m *mockSub) Send(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("pipe broken")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.got = append(m.got, cp)
	return nil
}

func (m *mockSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockSub) received() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.got)
}

func testAlert(id string) models.Alert {
	return models.Alert{
		ID:       id,
		Kind:     models.KindFiling8K,
		Priority: models.PriorityHigh,
		Company:  "Test Corp",
		Title:    "8-K: Test Corp",
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := New(100)
	a := &mockSub{id: "a"}
	b := &mockSub{id: "b"}
	h.Attach(a)
	h.Attach(b)

	h.Broadcast(testAlert("x1"))

	for _, sub := range []*mockSub{a, b} {
		if sub.received() != 1 {
			t.Fatalf("subscriber %s got %d payloads, want 1", sub.id, sub.received())
		}
		var decoded models.Alert
		if err := json.Unmarshal(sub.got[0], &decoded); err != nil {
			t.Fatalf("payload not valid JSON: %v", err)
		}
		if decoded.ID != "x1" {
			t.Errorf("payload id = %q", decoded.ID)
		}
	}
}

func TestFailingSubscriberIsDetached(t *testing.T) {
	h := New(100)
	good := &mockSub{id: "good"}
	bad := &mockSub{id: "bad", failing: true}
	h.Attach(good)
	h.Attach(bad)

	h.Broadcast(testAlert("x1"))

	if h.ConnectionCount() != 1 {
		t.Fatalf("ConnectionCount = %d, want 1", h.ConnectionCount())
	}
	if bad.closes != 1 {
		t.Errorf("failed subscriber closed %d times, want 1", bad.closes)
	}

	// The healthy one keeps receiving.
	h.Broadcast(testAlert("x2"))
	if good.received() != 2 {
		t.Errorf("good subscriber got %d payloads, want 2", good.received())
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	h := New(10)
	s := &mockSub{id: "s"}
	h.Attach(s)

	h.Detach("s")
	h.Detach("s")
	h.Detach("never-attached")

	if s.closes != 1 {
		t.Errorf("Close called %d times, want 1", s.closes)
	}
	if h.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount = %d, want 0", h.ConnectionCount())
	}
}

func TestRecentRingNewestFirst(t *testing.T) {
	h := New(100)
	for i := 0; i < 120; i++ {
		h.Broadcast(testAlert(fmt.Sprintf("id-%d", i)))
	}

	if h.RecentCount() != 100 {
		t.Fatalf("RecentCount = %d, want 100", h.RecentCount())
	}

	recent := h.Recent(50)
	if len(recent) != 50 {
		t.Fatalf("Recent(50) returned %d", len(recent))
	}
	if recent[0].ID != "id-119" {
		t.Errorf("newest = %s, want id-119", recent[0].ID)
	}
	if recent[49].ID != "id-70" {
		t.Errorf("50th = %s, want id-70", recent[49].ID)
	}

	all := h.Recent(0)
	if len(all) != 100 {
		t.Errorf("Recent(0) returned %d, want all 100", len(all))
	}
	if all[99].ID != "id-20" {
		t.Errorf("oldest retained = %s, want id-20", all[99].ID)
	}
}

func TestLateSubscriberMissesEarlierAlerts(t *testing.T) {
	h := New(10)
	h.Broadcast(testAlert("early"))

	late := &mockSub{id: "late"}
	h.Attach(late)
	h.Broadcast(testAlert("after"))

	if late.received() != 1 {
		t.Fatalf("late subscriber got %d payloads, want 1", late.received())
	}
	var decoded models.Alert
	json.Unmarshal(late.got[0], &decoded)
	if decoded.ID != "after" {
		t.Errorf("late subscriber saw %q, want after", decoded.ID)
	}
}

func TestCloseDetachesEveryone(t *testing.T) {
	h := New(10)
	a := &mockSub{id: "a"}
	b := &mockSub{id: "b"}
	h.Attach(a)
	h.Attach(b)

	h.Close()

	if h.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount = %d after Close", h.ConnectionCount())
	}
	if a.closes != 1 || b.closes != 1 {
		t.Errorf("closes = %d/%d, want 1/1", a.closes, b.closes)
	}
}
