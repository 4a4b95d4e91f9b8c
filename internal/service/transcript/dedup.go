package transcript

import "sync"

// Deduplicator remembers which segment keys have been handed downstream.
//
// The text seen the first time a key appears is the one delivered; later
// revisions of the same utterance are never returned again.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[Key]string // last text observed for each delivered key
}

// NewDeduplicator creates a deduplicator with an empty key set.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[Key]string)}
}

// Fresh returns the segments of view whose keys have not been seen before,
// in view order, and marks them as seen.
func (d *Deduplicator) Fresh(view []Segment) []Segment {
	fresh, _ := d.Sift(view)
	return fresh
}

// Sift is Fresh that also counts suppressed revisions: already-delivered
// segments whose text changed since the previous call. Each distinct
// revision is counted once, however often the view is recomputed.
func (d *Deduplicator) Sift(view []Segment) (fresh []Segment, suppressed int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, seg := range view {
		k := seg.Key()
		last, ok := d.seen[k]
		if ok {
			if last != seg.Text {
				d.seen[k] = seg.Text
				suppressed++
			}
			continue
		}
		d.seen[k] = seg.Text
		fresh = append(fresh, seg)
	}
	return fresh, suppressed
}

// Seen reports whether key has already been handed downstream.
func (d *Deduplicator) Seen(k Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[k]
	return ok
}

// Len returns the number of keys recorded.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Reset replaces the key set with a new, empty one.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[Key]string)
}
