package transcript

import (
	"sync"
	"time"
)

// SegmentStore is an in-memory Source fed by media-layer transcription events.
// Thread-safe for concurrent access.
type SegmentStore struct {
	mu       sync.RWMutex
	role     Role
	order    []string
	segments map[string]*Segment
}

// NewSegmentStore creates an empty store for one role.
func NewSegmentStore(role Role) *SegmentStore {
	return &SegmentStore{
		role:     role,
		segments: make(map[string]*Segment),
	}
}

// Role returns the role of every segment in the store.
func (s *SegmentStore) Role() Role {
	return s.role
}

// Upsert records a transcription event. The first event for segmentID fixes
// its ReceivedAt; later events only revise the text (and identity, if set).
// Returns true if the segment was new.
func (s *SegmentStore) Upsert(segmentID, identity, text string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seg, ok := s.segments[segmentID]; ok {
		seg.Text = text
		if identity != "" {
			seg.ParticipantIdentity = identity
		}
		return false
	}

	s.segments[segmentID] = &Segment{
		Role:                s.role,
		ParticipantIdentity: identity,
		Text:                text,
		ReceivedAt:          at,
	}
	s.order = append(s.order, segmentID)
	return true
}

// Segments returns a snapshot of the store in arrival order.
func (s *SegmentStore) Segments() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Segment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.segments[id])
	}
	return out
}

// Len returns the number of distinct segments seen.
func (s *SegmentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
