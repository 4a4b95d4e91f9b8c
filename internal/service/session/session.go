package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"voice-widget/internal/delivery"
	"voice-widget/internal/media"
	"voice-widget/internal/observability/logging"
	"voice-widget/internal/observability/metrics"
	"voice-widget/internal/service/token"
	"voice-widget/internal/service/transcript"
)

// DefaultIdentity is the participant identity requested when none is configured.
const DefaultIdentity = "admin"

// StateListener is notified of every state transition, in order, outside
// the session lock.
type StateListener func(from, to State)

// Config holds session configuration.
type Config struct {
	Identity      string // participant identity for the credential
	ServerURL     string // media server URL
	Metrics       *metrics.Metrics
	OnStateChange StateListener
}

// Session owns one widget activation at a time. All merge and dedup state
// lives on the instance, so independent sessions never interfere.
// Thread-safe for concurrent access.
type Session struct {
	identity  string
	serverURL string
	tokens    token.Fetcher
	dialer    media.Dialer
	sink      delivery.Sink
	metrics   *metrics.Metrics
	listener  StateListener
	tracer    trace.Tracer

	mu          sync.Mutex
	state       State
	epoch       uint64
	id          string
	cred        *token.Credential
	room        media.Room
	merger      *transcript.Merger
	dedup       *transcript.Deduplicator
	cancel      context.CancelFunc
	lastErr     error
	connectedAt time.Time
	delivered   int
	hungUp      bool // remote ended while the dial was completing
	hangupErr   error
	logger      zerolog.Logger
	pending     []transition
}

type transition struct {
	from, to State
}

// New creates an idle session.
func New(cfg Config, tokens token.Fetcher, dialer media.Dialer, sink delivery.Sink) *Session {
	identity := cfg.Identity
	if identity == "" {
		identity = DefaultIdentity
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Session{
		identity:  identity,
		serverURL: cfg.ServerURL,
		tokens:    tokens,
		dialer:    dialer,
		sink:      sink,
		metrics:   m,
		listener:  cfg.OnStateChange,
		tracer:    otel.Tracer("voice-widget/session"),
		state:     StateIdle,
		merger:    transcript.NewMerger(),
		dedup:     transcript.NewDeduplicator(),
		logger:    logging.WithComponent("session"),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CanCancel reports whether the cancel affordance should be shown.
func (s *Session) CanCancel() bool {
	return s.State().CanCancel()
}

// Err returns the error that moved the session to FAILED, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Transcript returns the current merged conversation view.
func (s *Session) Transcript() []transcript.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merger.View()
}

// Activate starts a new activation: fetch a credential for the configured
// identity, then connect with relay-only transport. It blocks until the
// session is CONNECTED or the activation failed.
//
// On failure the session is left in FAILED; the caller must call Activate
// again (or Cancel). Nothing is retried.
func (s *Session) Activate(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.CanActivate() {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: state=%s", ErrAlreadyActive, state)
	}

	s.resetLocked()
	s.epoch++
	epoch := s.epoch
	s.id = uuid.NewString()
	s.logger = logging.WithSession(s.id, "")
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.transitionLocked(StateTokenPending)
	s.unlockAndNotify()

	s.metrics.RecordActivation()

	ctx, span := s.tracer.Start(ctx, "session.activate",
		trace.WithAttributes(attribute.String("participant.identity", s.identity)))
	defer span.End()

	err := s.activate(ctx, epoch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Session) activate(ctx context.Context, epoch uint64) error {
	cred, err := s.fetchToken(ctx)
	if err != nil {
		if !errors.Is(err, ErrTokenFetch) {
			err = fmt.Errorf("%w: %w", ErrTokenFetch, err)
		}
		return s.fail(epoch, err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrCancelled
	}
	s.cred = &cred
	s.transitionLocked(StateConnecting)
	s.unlockAndNotify()

	return s.connect(ctx, epoch, cred)
}

func (s *Session) fetchToken(ctx context.Context) (token.Credential, error) {
	ctx, span := s.tracer.Start(ctx, "session.token")
	defer span.End()

	start := time.Now()
	cred, err := s.tokens.Fetch(ctx, s.identity)
	s.metrics.RecordTokenFetch(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return cred, err
}

// connect dials the media server with relay-only ICE. Direct paths are never
// attempted.
func (s *Session) connect(ctx context.Context, epoch uint64, cred token.Credential) error {
	ctx, span := s.tracer.Start(ctx, "session.connect",
		trace.WithAttributes(attribute.String("ice.transport_policy", string(media.ICETransportRelay))))
	defer span.End()

	opts := media.ConnectOptions{
		ServerURL:          s.serverURL,
		Token:              cred.Token,
		ICETransportPolicy: media.ICETransportRelay,
		AutoSubscribe:      true,
		Audio:              true,
		Video:              false,
	}

	start := time.Now()
	room, err := s.dialer.Dial(ctx, opts, &roomEvents{s: s, epoch: epoch})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return s.fail(epoch, fmt.Errorf("%w: %w", ErrConnect, err))
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		// Cancelled while dialing; the late room is not ours any more.
		_ = room.Close()
		return ErrCancelled
	}
	s.room = room
	s.connectedAt = time.Now()
	s.logger = logging.WithSession(s.id, room.Name())
	s.transitionLocked(StateConnected)
	s.metrics.RecordConnected(time.Since(start).Seconds())

	// Sources may have emitted while the dial was completing.
	s.processLocked()
	if s.hungUp {
		s.endLocked("remote", s.hangupErr)
		return nil
	}
	s.unlockAndNotify()

	span.SetAttributes(attribute.String("room.name", room.Name()))
	return nil
}

// fail moves the activation identified by epoch to FAILED.
func (s *Session) fail(epoch uint64, err error) error {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrCancelled
	}

	s.lastErr = err
	s.cred = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.logger.Error().Err(err).Str("state", s.state.String()).Msg("Session activation failed")
	s.transitionLocked(StateFailed)
	s.unlockAndNotify()
	return err
}

// Cancel abandons a pending or failed activation and returns to IDLE.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if !s.state.CanCancel() {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: state=%s", ErrNotCancellable, state)
	}

	s.logger.Info().Str("state", s.state.String()).Msg("Session activation cancelled")
	s.epoch++
	s.teardownLocked()
	s.transitionLocked(StateIdle)
	s.unlockAndNotify()
	return nil
}

// Disconnect ends the session at the local participant's request. A pending
// activation is cancelled; an idle session is left alone.
func (s *Session) Disconnect() {
	s.mu.Lock()
	switch {
	case s.state == StateConnected:
		s.endLocked("local", nil)
	case s.state.CanCancel():
		s.epoch++
		s.teardownLocked()
		s.transitionLocked(StateIdle)
		s.unlockAndNotify()
	default:
		s.mu.Unlock()
	}
}

// endLocked runs DISCONNECTED teardown and returns to IDLE. It releases the
// lock before closing the room.
func (s *Session) endLocked(reason string, cause error) {
	room := s.room
	s.epoch++

	s.transitionLocked(StateDisconnected)
	s.metrics.RecordSessionEnd(reason)
	s.logger.Info().
		Err(cause).
		Str("reason", reason).
		Int("delivered", s.delivered).
		Dur("duration", time.Since(s.connectedAt)).
		Msg("Session disconnected")

	s.teardownLocked()
	s.transitionLocked(StateIdle)
	s.unlockAndNotify()

	if room != nil {
		if err := room.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Error closing room")
		}
	}
}

// teardownLocked drops the credential and the room and replaces the merge
// and dedup state with fresh instances.
func (s *Session) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cred = nil
	s.room = nil
	s.merger = transcript.NewMerger()
	s.dedup = transcript.NewDeduplicator()
}

// resetLocked clears the previous activation before a new one starts.
func (s *Session) resetLocked() {
	s.teardownLocked()
	s.lastErr = nil
	s.hungUp = false
	s.hangupErr = nil
	s.delivered = 0
	s.connectedAt = time.Time{}
}

// processLocked recomputes the merged view and enqueues each segment seen
// for the first time.
func (s *Session) processLocked() {
	room := s.room
	view := s.merger.Recompute(room.UserTranscriptions(), room.AgentTranscriptions())
	fresh, suppressed := s.dedup.Sift(view)
	s.metrics.RecordMerge(len(view), suppressed)

	for _, seg := range fresh {
		rec := delivery.NewRecord(seg, room.Name(), room.LocalIdentity())
		s.sink.Enqueue(rec)
		s.delivered++
		s.metrics.RecordFirstSeen(rec.Type)
		s.logger.Debug().
			Str("key", seg.Key().String()).
			Str("participant", rec.Participant).
			Msg("Segment enqueued for delivery")
	}
}

func (s *Session) onTranscriptionUpdate(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Updates from a torn-down or superseded room are dropped.
	if s.epoch != epoch || s.state != StateConnected {
		return
	}
	s.processLocked()
}

func (s *Session) onRemoteDisconnect(epoch uint64, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateConnected:
		s.endLocked("remote", err)
	case StateConnecting:
		s.hungUp = true
		s.hangupErr = err
		s.mu.Unlock()
	default:
		s.mu.Unlock()
	}
}

func (s *Session) transitionLocked(to State) {
	from := s.state
	s.state = to
	s.pending = append(s.pending, transition{from: from, to: to})
	s.metrics.RecordTransition(to.String())
	s.logger.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Session state changed")
}

// unlockAndNotify releases the lock and delivers queued transitions to the
// listener.
func (s *Session) unlockAndNotify() {
	pending := s.pending
	s.pending = nil
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		return
	}
	for _, t := range pending {
		listener(t.from, t.to)
	}
}

// roomEvents binds media notifications to the activation that dialed them.
type roomEvents struct {
	s     *Session
	epoch uint64
}

func (e *roomEvents) OnTranscriptionUpdate() {
	e.s.onTranscriptionUpdate(e.epoch)
}

func (e *roomEvents) OnDisconnected(err error) {
	e.s.onRemoteDisconnect(e.epoch, err)
}

// Snapshot is a point-in-time view of the session for status reporting.
type Snapshot struct {
	SessionID   string    `json:"sessionId,omitempty"`
	State       State     `json:"state"`
	CanCancel   bool      `json:"canCancel"`
	Identity    string    `json:"identity"`
	Room        string    `json:"room,omitempty"`
	Segments    int       `json:"segments"`
	Delivered   int       `json:"delivered"`
	ConnectedAt time.Time `json:"connectedAt,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
}

// Snapshot returns the current status of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:   s.id,
		State:       s.state,
		CanCancel:   s.state.CanCancel(),
		Identity:    s.identity,
		Segments:    len(s.merger.View()),
		Delivered:   s.delivered,
		ConnectedAt: s.connectedAt,
	}
	if s.room != nil {
		snap.Room = s.room.Name()
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}
