package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"voice-widget/internal/app"
	"voice-widget/internal/config"
	"voice-widget/internal/observability/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	upload := flag.String("upload", "", "Upload a PDF to the knowledge base and exit")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Error().Err(err).Str("path", *envFile).Msg("Failed to load .env file")
		return 1
	}
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	application := app.New(cfg, app.Options{})
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *upload != "" {
		if err := application.Upload(ctx, *upload, ""); err != nil {
			log.Error().Err(err).Str("path", *upload).Msg("Upload failed")
			return 1
		}
		log.Info().Str("path", *upload).Msg("Upload complete")
		return 0
	}

	if err := application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Voice widget stopped with error")
		return 1
	}
	return 0
}
