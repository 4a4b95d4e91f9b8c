package transcript

import (
	"slices"
	"sync"
)

// Merge combines both sources' segments into one view ordered by ReceivedAt.
// Agent segments are listed before user segments prior to the stable sort,
// so equal timestamps keep that order.
func Merge(user, agent []Segment) []Segment {
	view := make([]Segment, 0, len(user)+len(agent))
	view = append(view, agent...)
	view = append(view, user...)
	slices.SortStableFunc(view, func(a, b Segment) int {
		return a.ReceivedAt.Compare(b.ReceivedAt)
	})
	return view
}

// Merger keeps the most recent merged view of two sources. Every Recompute
// rebuilds the view from scratch.
type Merger struct {
	mu   sync.RWMutex
	view []Segment
}

// NewMerger creates a merger with an empty view.
func NewMerger() *Merger {
	return &Merger{}
}

// Recompute reads both sources and replaces the cached view. A nil source
// contributes nothing.
func (m *Merger) Recompute(user, agent Source) []Segment {
	var u, a []Segment
	if user != nil {
		u = user.Segments()
	}
	if agent != nil {
		a = agent.Segments()
	}
	view := Merge(u, a)

	m.mu.Lock()
	m.view = view
	m.mu.Unlock()

	return slices.Clone(view)
}

// View returns a copy of the last merged view.
func (m *Merger) View() []Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.view)
}

// Reset drops the cached view.
func (m *Merger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = nil
}
