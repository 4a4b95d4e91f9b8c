// Package transcript merges the local-user and remote-agent transcription
// streams into one ordered conversation log and tracks which segments have
// already been forwarded downstream.
package transcript

import (
	"fmt"
	"time"
)

// Role identifies which side of the conversation produced a segment.
type Role int

const (
	// RoleUser - the local participant (microphone track).
	RoleUser Role = iota
	// RoleAgent - the remote AI agent.
	RoleAgent
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAgent:
		return "agent"
	default:
		return fmt.Sprintf("unknown(%d)", r)
	}
}

// Segment is one transcribed utterance, or a partial of one.
//
// ReceivedAt is assigned when the utterance first arrives and stays the same
// across its revisions; only Text grows.
type Segment struct {
	Role                Role
	ParticipantIdentity string
	Text                string
	ReceivedAt          time.Time
}

// Key identifies a segment across its revisions for delivery purposes.
type Key struct {
	Role       Role
	ReceivedAt int64 // unix millis
}

// String renders the key as "role:millis".
func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Role, k.ReceivedAt)
}

// Key returns the dedup key of the segment.
func (s Segment) Key() Key {
	return Key{Role: s.Role, ReceivedAt: s.ReceivedAt.UnixMilli()}
}

// Source is a live transcription stream. Segments returns the current
// segment set in arrival order; it may be called at any time.
type Source interface {
	Segments() []Segment
}
