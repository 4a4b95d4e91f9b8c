package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voice-widget/internal/media"
	"voice-widget/internal/service/transcript"
)

// testEvents records room notifications.
type testEvents struct {
	mu           sync.Mutex
	updates      int
	disconnected []error
	done         chan struct{}
}

func (e *testEvents) OnTranscriptionUpdate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates++
}

func (e *testEvents) OnDisconnected(err error) {
	e.mu.Lock()
	e.disconnected = append(e.disconnected, err)
	e.mu.Unlock()
	if e.done != nil {
		close(e.done)
	}
}

func (e *testEvents) getUpdates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updates
}

func relay() media.ConnectOptions {
	return media.ConnectOptions{ICETransportPolicy: media.ICETransportRelay}
}

func TestDialer_RequiresRelay(t *testing.T) {
	d := &Dialer{}
	_, err := d.Dial(context.Background(), media.ConnectOptions{ICETransportPolicy: media.ICETransportAll}, &testEvents{})
	if !errors.Is(err, media.ErrRelayRequired) {
		t.Fatalf("expected ErrRelayRequired, got %v", err)
	}
	if len(d.Dials()) != 1 {
		t.Errorf("expected dial to be recorded, got %d", len(d.Dials()))
	}
}

func TestDialer_ConfiguredError(t *testing.T) {
	want := errors.New("turn server unreachable")
	d := &Dialer{Err: want}
	if _, err := d.Dial(context.Background(), relay(), &testEvents{}); !errors.Is(err, want) {
		t.Fatalf("expected configured error, got %v", err)
	}
}

func TestDialer_PlaysScriptAndHangsUp(t *testing.T) {
	ev := &testEvents{done: make(chan struct{})}
	d := &Dialer{
		Script:         DefaultScript,
		Interval:       time.Millisecond,
		RoomName:       "room-test",
		Identity:       "admin",
		EndAfterScript: true,
	}

	r, err := d.Dial(context.Background(), relay(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-ev.done:
	case <-time.After(5 * time.Second):
		t.Fatal("script did not finish")
	}

	emissions := 0
	for _, u := range DefaultScript {
		emissions += len(u.Partials) + 1
	}
	if ev.getUpdates() != emissions {
		t.Errorf("expected %d updates, got %d", emissions, ev.getUpdates())
	}

	user := r.UserTranscriptions().Segments()
	agent := r.AgentTranscriptions().Segments()
	if len(user) != 2 || len(agent) != 2 {
		t.Fatalf("expected 2 user and 2 agent segments, got %d and %d", len(user), len(agent))
	}
	if user[0].Text != DefaultScript[1].Final {
		t.Errorf("expected final text %q, got %q", DefaultScript[1].Final, user[0].Text)
	}
	if user[0].ParticipantIdentity != "admin" {
		t.Errorf("expected user identity 'admin', got %s", user[0].ParticipantIdentity)
	}
}

func TestRoom_EmitAfterCloseIgnored(t *testing.T) {
	ev := &testEvents{}
	r := NewRoom("r", "admin", ev)

	if !r.Emit(transcript.RoleUser, "u1", "hi", time.UnixMilli(1)) {
		t.Fatal("expected emit to succeed before close")
	}
	r.Close()
	if r.Emit(transcript.RoleUser, "u2", "bye", time.UnixMilli(2)) {
		t.Error("expected emit to fail after close")
	}
	if ev.getUpdates() != 1 {
		t.Errorf("expected 1 update, got %d", ev.getUpdates())
	}
	if !r.Closed() {
		t.Error("expected room to report closed")
	}
}

func TestRoom_HangupOnce(t *testing.T) {
	ev := &testEvents{}
	r := NewRoom("r", "admin", ev)

	r.Hangup(nil)
	r.Hangup(nil)
	r.Close()

	if len(ev.disconnected) != 1 {
		t.Errorf("expected exactly one disconnect notification, got %d", len(ev.disconnected))
	}
}
