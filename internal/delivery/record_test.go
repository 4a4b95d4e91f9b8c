package delivery

import (
	"testing"
	"time"

	"voice-widget/internal/service/transcript"
)

func TestNewRecord(t *testing.T) {
	ts := time.UnixMilli(1700000000123)

	tests := []struct {
		name            string
		seg             transcript.Segment
		room            string
		wantRoom        string
		wantType        string
		wantParticipant string
	}{
		{
			name:            "user with identity",
			seg:             transcript.Segment{Role: transcript.RoleUser, ParticipantIdentity: "visitor", Text: "hi", ReceivedAt: ts},
			room:            "room-1",
			wantRoom:        "room-1",
			wantType:        "user",
			wantParticipant: "visitor",
		},
		{
			name:            "user falls back to local identity",
			seg:             transcript.Segment{Role: transcript.RoleUser, Text: "hi", ReceivedAt: ts},
			room:            "room-1",
			wantRoom:        "room-1",
			wantType:        "user",
			wantParticipant: "admin",
		},
		{
			name:            "agent falls back to agent",
			seg:             transcript.Segment{Role: transcript.RoleAgent, Text: "hello", ReceivedAt: ts},
			room:            "",
			wantRoom:        UnknownRoom,
			wantType:        "agent",
			wantParticipant: AgentParticipant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecord(tt.seg, tt.room, "admin")

			if rec.Room != tt.wantRoom {
				t.Errorf("room = %s, want %s", rec.Room, tt.wantRoom)
			}
			if rec.Type != tt.wantType {
				t.Errorf("type = %s, want %s", rec.Type, tt.wantType)
			}
			if rec.Participant != tt.wantParticipant {
				t.Errorf("participant = %s, want %s", rec.Participant, tt.wantParticipant)
			}
			if rec.TS != 1700000000123 {
				t.Errorf("ts = %d, want 1700000000123", rec.TS)
			}
			if rec.Text != tt.seg.Text {
				t.Errorf("text = %s, want %s", rec.Text, tt.seg.Text)
			}
		})
	}
}
