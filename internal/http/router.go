// Package http exposes the widget's status surface.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voice-widget/internal/service/session"
	"voice-widget/internal/service/transcript"
)

// StatusSource reports the live session.
type StatusSource interface {
	Snapshot() session.Snapshot
	Transcript() []transcript.Segment
}

// transcriptLine is the JSON form of a merged segment.
type transcriptLine struct {
	Role        string `json:"role"`
	Participant string `json:"participant,omitempty"`
	Text        string `json:"text"`
	TS          int64  `json:"ts"`
}

// NewRouter constructs the status router. A nil gatherer serves the
// default Prometheus registry.
func NewRouter(src StatusSource, gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if src.Snapshot().State == session.StateFailed {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("failed"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/session", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, src.Snapshot())
		})
		r.Get("/transcript", func(w http.ResponseWriter, _ *http.Request) {
			view := src.Transcript()
			lines := make([]transcriptLine, 0, len(view))
			for _, seg := range view {
				lines = append(lines, transcriptLine{
					Role:        seg.Role.String(),
					Participant: seg.ParticipantIdentity,
					Text:        seg.Text,
					TS:          seg.ReceivedAt.UnixMilli(),
				})
			}
			writeJSON(w, lines)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
