// Package config loads widget configuration from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all widget configuration.
type Config struct {
	Service       ServiceConfig
	Backend       BackendConfig
	Media         MediaConfig
	Delivery      DeliveryConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the widget participant.
type ServiceConfig struct {
	Identity  string // participant identity requested with the token
	Room      string // optional room; empty lets the backend choose
	Principal string // producer identity stamped on published events
}

// BackendConfig locates the token/transcript/document API.
type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// MediaConfig selects and configures the media engine.
type MediaConfig struct {
	ServerURL        string
	Engine           string // "ws" or "mock"
	HandshakeTimeout time.Duration
	MockInterval     time.Duration
}

// DeliveryConfig controls best-effort transcript delivery.
type DeliveryConfig struct {
	PostTimeout time.Duration
}

// KafkaConfig controls the optional Kafka transcript sink.
type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	Principal string
}

// ObservabilityConfig controls logging and the status server.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
	HTTPAddr  string
}

// LoadDotEnv reads a .env file into the environment when it exists.
// Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads configuration from environment variables. Invalid values fall
// back to defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-widget")

	return &Config{
		Service: ServiceConfig{
			Identity:  envOrDefault("WIDGET_IDENTITY", "admin"),
			Room:      envOrDefault("WIDGET_ROOM", ""),
			Principal: principal,
		},
		Backend: BackendConfig{
			BaseURL:        envOrDefault("BACKEND_BASE_URL", "http://localhost:8000/api"),
			RequestTimeout: envOrDefaultDuration("BACKEND_REQUEST_TIMEOUT", 10*time.Second),
		},
		Media: MediaConfig{
			ServerURL:        envOrDefault("LIVEKIT_URL", "ws://localhost:7880"),
			Engine:           envOrDefault("MEDIA_ENGINE", "ws"),
			HandshakeTimeout: envOrDefaultDuration("MEDIA_HANDSHAKE_TIMEOUT", 15*time.Second),
			MockInterval:     envOrDefaultDuration("MEDIA_MOCK_INTERVAL", 300*time.Millisecond),
		},
		Delivery: DeliveryConfig{
			PostTimeout: envOrDefaultDuration("DELIVERY_POST_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:   envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:   envOrDefaultList("KAFKA_BROKERS", nil),
			Topic:     envOrDefault("KAFKA_TOPIC", "voice-widget.transcripts.v1"),
			Principal: envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
			HTTPAddr:  envOrDefault("HTTP_ADDR", ":8090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// envOrDefaultList splits a comma-separated value, dropping empty entries.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
