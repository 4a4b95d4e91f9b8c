package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"voice-widget/internal/config"
	"voice-widget/internal/delivery"
	router "voice-widget/internal/http"
	"voice-widget/internal/knowledge"
	"voice-widget/internal/media"
	"voice-widget/internal/media/mock"
	"voice-widget/internal/media/wsengine"
	"voice-widget/internal/observability"
	"voice-widget/internal/observability/metrics"
	"voice-widget/internal/service/session"
	"voice-widget/internal/service/token"
)

// Application wires the widget components for one process.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Session   *session.Session
	Queue     *delivery.Queue
	Knowledge *knowledge.Panel

	server *observability.Server
	ended  chan struct{}
	once   sync.Once
}

// Options overrides components, mainly for tests. Zero values build the
// defaults from configuration.
type Options struct {
	Dialer   media.Dialer
	Tokens   token.Fetcher
	Posters  []delivery.Poster
	Registry *prometheus.Registry
}

// New constructs an Application from cfg.
func New(cfg *config.Config, opts Options) *Application {
	a := &Application{
		Cfg:    cfg,
		Logger: log.With().Str("service", "voice-widget").Str("component", "application").Logger(),
		ended:  make(chan struct{}),
	}

	m := metrics.DefaultMetrics
	var gatherer prometheus.Gatherer
	if opts.Registry != nil {
		m = metrics.NewMetrics(opts.Registry)
		gatherer = opts.Registry
	}

	httpClient := &http.Client{Timeout: cfg.Backend.RequestTimeout}

	tokens := opts.Tokens
	if tokens == nil {
		tokens = token.NewClient(token.Config{
			BaseURL: cfg.Backend.BaseURL,
			Room:    cfg.Service.Room,
			Timeout: cfg.Backend.RequestTimeout,
		}, httpClient)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = newDialer(cfg.Media)
	}

	posters := opts.Posters
	if posters == nil {
		posters = []delivery.Poster{
			delivery.NewHTTPPoster(cfg.Backend.BaseURL, httpClient),
			delivery.NewKafkaPoster(&delivery.KafkaConfig{
				Enabled:   cfg.Kafka.Enabled,
				Brokers:   cfg.Kafka.Brokers,
				Topic:     cfg.Kafka.Topic,
				Principal: cfg.Kafka.Principal,
			}),
		}
	}
	a.Queue = delivery.NewQueue(delivery.QueueConfig{
		PostTimeout: cfg.Delivery.PostTimeout,
		Metrics:     m,
	}, posters...)

	a.Session = session.New(session.Config{
		Identity:      cfg.Service.Identity,
		ServerURL:     cfg.Media.ServerURL,
		Metrics:       m,
		OnStateChange: a.onStateChange,
	}, tokens, dialer, a.Queue)

	a.Knowledge = knowledge.NewPanel(knowledge.NewClient(knowledge.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.RequestTimeout,
		Metrics: m,
	}, httpClient))

	a.server = observability.NewServer(cfg.Observability.HTTPAddr, router.NewRouter(a.Session, gatherer))

	a.Logger.Info().
		Str("identity", cfg.Service.Identity).
		Str("engine", cfg.Media.Engine).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Voice widget application created")
	return a
}

func newDialer(cfg config.MediaConfig) media.Dialer {
	if cfg.Engine == "mock" {
		return &mock.Dialer{
			Script:         mock.DefaultScript,
			Interval:       cfg.MockInterval,
			RoomName:       "mock-room",
			Identity:       "admin",
			EndAfterScript: true,
		}
	}
	return wsengine.NewDialer(cfg.HandshakeTimeout)
}

// onStateChange signals the runner when a connected session has ended.
func (a *Application) onStateChange(from, to session.State) {
	if from == session.StateDisconnected && to == session.StateIdle {
		a.once.Do(func() { close(a.ended) })
	}
}

// Run activates the session and serves the status surface until ctx is
// cancelled or the remote side ends the session.
func (a *Application) Run(ctx context.Context) error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().Time("startupTime", a.StartupTime).Msg("Voice widget starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gctx)
	})

	g.Go(func() error {
		if err := a.Knowledge.Refresh(gctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Knowledge base unavailable")
		} else {
			a.Logger.Info().Int("documents", len(a.Knowledge.Documents())).Msg("Knowledge base loaded")
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		if err := a.Session.Activate(gctx); err != nil {
			if errors.Is(err, session.ErrCancelled) {
				return nil
			}
			return fmt.Errorf("activate session: %w", err)
		}

		select {
		case <-gctx.Done():
			a.Session.Disconnect()
		case <-a.ended:
			a.Logger.Info().Msg("Session ended by remote participant")
		}
		return nil
	})

	return g.Wait()
}

// Upload validates and uploads a local PDF to the knowledge base.
func (a *Application) Upload(ctx context.Context, path, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	_, err = a.Knowledge.Upload(ctx, knowledge.File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	})
	return err
}

// Shutdown waits for in-flight deliveries and releases sinks.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("Voice widget shutting down")
	a.Session.Disconnect()
	if err := a.Queue.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Error closing delivery sinks")
	}
}
