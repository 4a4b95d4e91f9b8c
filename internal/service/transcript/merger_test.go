package transcript

import (
	"math/rand"
	"slices"
	"testing"
	"time"
)

func at(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func TestMerge_OrdersByReceivedAt(t *testing.T) {
	// Agent segment at 200 arrives before the user segment at 100.
	agent := NewSegmentStore(RoleAgent)
	user := NewSegmentStore(RoleUser)
	agent.Upsert("a1", "agent", "hello there", at(200))
	user.Upsert("u1", "admin", "hi", at(100))

	view := NewMerger().Recompute(user, agent)

	if len(view) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(view))
	}
	if view[0].Role != RoleUser || view[0].Text != "hi" {
		t.Errorf("expected user segment first, got %+v", view[0])
	}
	if view[1].Role != RoleAgent {
		t.Errorf("expected agent segment second, got %+v", view[1])
	}
}

func TestMerge_TiesKeepArrivalOrder(t *testing.T) {
	agent := []Segment{{Role: RoleAgent, Text: "a", ReceivedAt: at(100)}}
	user := []Segment{{Role: RoleUser, Text: "u", ReceivedAt: at(100)}}

	view := Merge(user, agent)

	if view[0].Role != RoleAgent || view[1].Role != RoleUser {
		t.Errorf("expected agent then user on tie, got %v then %v", view[0].Role, view[1].Role)
	}
}

func TestMerge_AnyInterleavingIsSorted(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		user := NewSegmentStore(RoleUser)
		agent := NewSegmentStore(RoleAgent)
		m := NewMerger()

		for i := 0; i < 40; i++ {
			ts := at(rng.Int63n(10_000))
			if rng.Intn(2) == 0 {
				user.Upsert(ts.String()+"u", "admin", "x", ts)
			} else {
				agent.Upsert(ts.String()+"a", "agent", "y", ts)
			}

			view := m.Recompute(user, agent)
			sorted := slices.IsSortedFunc(view, func(a, b Segment) int {
				return a.ReceivedAt.Compare(b.ReceivedAt)
			})
			if !sorted {
				t.Fatalf("round %d step %d: view not sorted", round, i)
			}
			if len(view) != user.Len()+agent.Len() {
				t.Fatalf("round %d step %d: view has %d segments, sources have %d",
					round, i, len(view), user.Len()+agent.Len())
			}
		}
	}
}

func TestMerger_RecomputeIsIdempotent(t *testing.T) {
	user := NewSegmentStore(RoleUser)
	agent := NewSegmentStore(RoleAgent)
	user.Upsert("u1", "admin", "one", at(300))
	agent.Upsert("a1", "agent", "two", at(100))
	user.Upsert("u2", "admin", "three", at(200))

	m := NewMerger()
	first := m.Recompute(user, agent)
	second := m.Recompute(user, agent)

	if !slices.Equal(first, second) {
		t.Errorf("recompute not idempotent:\n%v\n%v", first, second)
	}
	if !slices.Equal(second, m.View()) {
		t.Error("View() does not match last recompute")
	}
}

func TestMerger_RevisionReplacesText(t *testing.T) {
	user := NewSegmentStore(RoleUser)
	m := NewMerger()

	user.Upsert("u1", "admin", "hel", at(100))
	m.Recompute(user, nil)
	user.Upsert("u1", "admin", "hello", at(150))
	view := m.Recompute(user, nil)

	if len(view) != 1 {
		t.Fatalf("expected revision to keep one segment, got %d", len(view))
	}
	if view[0].Text != "hello" {
		t.Errorf("expected revised text 'hello', got %q", view[0].Text)
	}
	if !view[0].ReceivedAt.Equal(at(100)) {
		t.Errorf("expected ReceivedAt fixed at first arrival, got %v", view[0].ReceivedAt)
	}
}

func TestMerger_Reset(t *testing.T) {
	user := NewSegmentStore(RoleUser)
	user.Upsert("u1", "admin", "hi", at(1))

	m := NewMerger()
	m.Recompute(user, nil)
	m.Reset()

	if len(m.View()) != 0 {
		t.Errorf("expected empty view after reset, got %d", len(m.View()))
	}
}

func TestRole_String(t *testing.T) {
	tests := []struct {
		role     Role
		expected string
	}{
		{RoleUser, "user"},
		{RoleAgent, "agent"},
		{Role(7), "unknown(7)"},
	}

	for _, tt := range tests {
		if got := tt.role.String(); got != tt.expected {
			t.Errorf("Role(%d).String() = %v, want %v", tt.role, got, tt.expected)
		}
	}
}
