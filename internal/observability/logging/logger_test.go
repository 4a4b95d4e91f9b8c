package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := log.Logger
	buf := &bytes.Buffer{}
	log.Logger = zerolog.New(buf)
	t.Cleanup(func() { log.Logger = prev })
	return buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestWithSession(t *testing.T) {
	tests := []struct {
		name     string
		room     string
		wantRoom bool
	}{
		{"connected", "room-1", true},
		{"pending", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureGlobal(t)

			logger := WithSession("sess-1", tt.room)
			logger.Info().Msg("hello")

			entry := decodeLine(t, buf)
			if entry["sessionId"] != "sess-1" {
				t.Errorf("expected sessionId 'sess-1', got %v", entry["sessionId"])
			}
			_, hasRoom := entry["room"]
			if hasRoom != tt.wantRoom {
				t.Errorf("expected room present=%v, got %v", tt.wantRoom, entry)
			}
		})
	}
}

func TestWithComponent(t *testing.T) {
	buf := captureGlobal(t)

	logger := WithComponent("delivery")
	logger.Warn().Msg("dropped")

	entry := decodeLine(t, buf)
	if entry["component"] != "delivery" {
		t.Errorf("expected component 'delivery', got %v", entry["component"])
	}
	if entry["level"] != "warn" {
		t.Errorf("expected level 'warn', got %v", entry["level"])
	}
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	prev := log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prev
		zerolog.TimeFieldFormat = time.RFC3339
	})

	Init(Config{Level: "verbose", Format: "json", TimeFormat: time.RFC3339})

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", zerolog.GlobalLevel())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" || cfg.Format != "json" {
		t.Errorf("unexpected default config %+v", cfg)
	}
}
