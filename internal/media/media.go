// Package media defines the boundary to the real-time media engine.
//
// The engine owns transport negotiation, codecs and audio rendering. The
// widget core only needs a connected Room exposing two transcription sources
// and a notification when either source changes or the room goes away.
package media

import (
	"context"
	"errors"
	"fmt"

	"voice-widget/internal/service/transcript"
)

// ICETransportPolicy selects which ICE candidates the engine may use.
type ICETransportPolicy string

const (
	// ICETransportRelay routes all media through a TURN relay.
	ICETransportRelay ICETransportPolicy = "relay"
	// ICETransportAll allows direct peer candidates.
	ICETransportAll ICETransportPolicy = "all"
)

// ErrRelayRequired is returned when a dial is attempted without the relay policy.
var ErrRelayRequired = errors.New("relay-only ICE transport policy required")

// ConnectOptions configures one connection attempt.
type ConnectOptions struct {
	ServerURL          string
	Token              string
	ICETransportPolicy ICETransportPolicy
	AutoSubscribe      bool
	Audio              bool
	Video              bool
}

// RequireRelay rejects options that would let the engine try direct paths.
// Corporate and VPN networks commonly block UDP, so relay is mandatory.
func RequireRelay(opts ConnectOptions) error {
	if opts.ICETransportPolicy != ICETransportRelay {
		return fmt.Errorf("%w: got %q", ErrRelayRequired, opts.ICETransportPolicy)
	}
	return nil
}

// Events receives notifications from a connected room. Calls may arrive on
// any goroutine but are serialized per room.
type Events interface {
	// OnTranscriptionUpdate is called after either transcription source changed.
	OnTranscriptionUpdate()

	// OnDisconnected is called once when the remote side ends the session
	// or the connection is lost. It is not called after Room.Close.
	OnDisconnected(err error)
}

// Room is a connected real-time session.
type Room interface {
	// Name returns the room name, or "" if the engine does not know it.
	Name() string

	// LocalIdentity returns the identity of the local participant.
	LocalIdentity() string

	// UserTranscriptions is the local participant's microphone transcription.
	UserTranscriptions() transcript.Source

	// AgentTranscriptions is the remote agent's transcription.
	AgentTranscriptions() transcript.Source

	// Close leaves the room and releases resources.
	Close() error
}

// Dialer connects to the media server.
type Dialer interface {
	Dial(ctx context.Context, opts ConnectOptions, events Events) (Room, error)
}
