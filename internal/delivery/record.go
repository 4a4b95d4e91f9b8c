package delivery

import (
	"voice-widget/internal/models"
	"voice-widget/internal/service/transcript"
)

const (
	// UnknownRoom is used when the session has no room name.
	UnknownRoom = "unknown-room"
	// AgentParticipant is used for agent segments without an identity.
	AgentParticipant = "agent"
)

// NewRecord builds the log-store record for a segment as first seen.
func NewRecord(seg transcript.Segment, room, localIdentity string) models.TranscriptRecord {
	if room == "" {
		room = UnknownRoom
	}

	participant := seg.ParticipantIdentity
	if participant == "" {
		if seg.Role == transcript.RoleUser {
			participant = localIdentity
		} else {
			participant = AgentParticipant
		}
	}

	return models.TranscriptRecord{
		Room:        room,
		Type:        seg.Role.String(),
		Text:        seg.Text,
		TS:          seg.ReceivedAt.UnixMilli(),
		Participant: participant,
	}
}
