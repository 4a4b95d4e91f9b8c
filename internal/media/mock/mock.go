// Package mock provides a scripted media engine for tests and demos without
// a media server. It simulates realistic transcription behaviour: each
// utterance arrives as progressively longer partials followed by a final,
// all carrying the same first-arrival time.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voice-widget/internal/media"
	"voice-widget/internal/service/transcript"
)

// Utterance is one simulated turn of the conversation.
type Utterance struct {
	Role     transcript.Role
	Partials []string // Progressive partial transcripts
	Final    string   // Final transcript text
}

// DefaultScript is a short coaching conversation.
var DefaultScript = []Utterance{
	{
		Role:     transcript.RoleAgent,
		Partials: []string{"Hi", "Hi there, I'm"},
		Final:    "Hi there, I'm your scrum coach. What are you working on?",
	},
	{
		Role:     transcript.RoleUser,
		Partials: []string{"Our", "Our sprint", "Our sprint planning"},
		Final:    "Our sprint planning keeps running over time",
	},
	{
		Role:     transcript.RoleAgent,
		Partials: []string{"That's", "That's common."},
		Final:    "That's common. Let's look at how the backlog is refined beforehand.",
	},
	{
		Role:     transcript.RoleUser,
		Partials: []string{"Thank you"},
		Final:    "Thank you, that helps",
	},
}

// Dialer implements media.Dialer with an in-process room.
type Dialer struct {
	Script         []Utterance   // played after connect; nil plays nothing
	Interval       time.Duration // delay between emissions
	RoomName       string
	Identity       string
	EndAfterScript bool  // remote hangs up once the script is done
	Err            error // returned by Dial when set

	mu    sync.Mutex
	dials []media.ConnectOptions
	last  *Room
}

// Dial implements media.Dialer.
func (d *Dialer) Dial(ctx context.Context, opts media.ConnectOptions, events media.Events) (media.Room, error) {
	d.mu.Lock()
	d.dials = append(d.dials, opts)
	d.mu.Unlock()

	if err := media.RequireRelay(opts); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := NewRoom(d.RoomName, d.Identity, events)

	d.mu.Lock()
	d.last = r
	d.mu.Unlock()

	if len(d.Script) > 0 {
		go r.play(d.Script, d.Interval, d.EndAfterScript)
	}
	return r, nil
}

// Dials returns the options of every Dial call so far.
func (d *Dialer) Dials() []media.ConnectOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]media.ConnectOptions{}, d.dials...)
}

// LastRoom returns the most recently created room, or nil.
func (d *Dialer) LastRoom() *Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Room is an in-process media.Room driven by Emit and Hangup.
type Room struct {
	name     string
	identity string
	user     *transcript.SegmentStore
	agent    *transcript.SegmentStore
	events   media.Events

	mu     sync.Mutex
	closed bool
	seq    int
	stop   chan struct{}
}

// NewRoom creates a room that reports to events.
func NewRoom(name, identity string, events media.Events) *Room {
	return &Room{
		name:     name,
		identity: identity,
		user:     transcript.NewSegmentStore(transcript.RoleUser),
		agent:    transcript.NewSegmentStore(transcript.RoleAgent),
		events:   events,
		stop:     make(chan struct{}),
	}
}

func (r *Room) Name() string                           { return r.name }
func (r *Room) LocalIdentity() string                  { return r.identity }
func (r *Room) UserTranscriptions() transcript.Source  { return r.user }
func (r *Room) AgentTranscriptions() transcript.Source { return r.agent }

// Emit records a transcription event and notifies the listener.
// Events after Close are ignored. Returns false if the room is closed.
func (r *Room) Emit(role transcript.Role, segmentID, text string, at time.Time) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	identity := "agent"
	store := r.agent
	if role == transcript.RoleUser {
		identity = r.identity
		store = r.user
	}
	store.Upsert(segmentID, identity, text, at)
	r.events.OnTranscriptionUpdate()
	return true
}

// Hangup simulates the remote side ending the session.
func (r *Room) Hangup(err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.stop)
	r.mu.Unlock()

	r.events.OnDisconnected(err)
}

// Close implements media.Room.
func (r *Room) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.stop)
	return nil
}

// Closed reports whether the room has been closed or hung up.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) nextID(role transcript.Role) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return fmt.Sprintf("%s-seg-%d", role, r.seq)
}

func (r *Room) play(script []Utterance, interval time.Duration, endAfter bool) {
	for _, utt := range script {
		id := r.nextID(utt.Role)
		at := time.Now()

		texts := append(append([]string{}, utt.Partials...), utt.Final)
		for _, text := range texts {
			select {
			case <-r.stop:
				return
			case <-time.After(interval):
			}
			if !r.Emit(utt.Role, id, text, at) {
				return
			}
		}
	}

	if endAfter {
		r.Hangup(nil)
	}
}
