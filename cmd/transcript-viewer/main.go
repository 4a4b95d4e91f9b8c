// Command transcript-viewer follows the transcript topic and relays records
// to browsers over a websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"voice-widget/internal/observability/logging"
	"voice-widget/internal/viewer"
)

func main() {
	addr := flag.String("addr", ":8081", "HTTP listen address")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "voice-widget.transcripts.v1", "Transcript topic")
	lookback := flag.Duration("lookback", time.Hour, "Replay window on start")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := viewer.NewHub()

	r := chi.NewRouter()
	r.Handle("/ws", hub)
	srv := &http.Server{Addr: *addr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return hub.Consume(gctx, viewer.ConsumerConfig{
			Brokers:  strings.Split(*brokers, ","),
			Topic:    *topic,
			Lookback: *lookback,
		})
	})
	g.Go(func() error {
		log.Info().Str("addr", *addr).Str("topic", *topic).Msg("Transcript viewer starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Transcript viewer stopped with error")
	}
}
