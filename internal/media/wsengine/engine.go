// Package wsengine connects to a media server's signalling websocket and
// surfaces its transcription stream as two transcript sources.
//
// Protocol (JSON text frames):
//
//	client → server  {"type":"join","ice_transport_policy":"relay","auto_subscribe":true,"audio":true,"video":false}
//	server → client  {"type":"joined","room":"room-1a2b","identity":"admin"}
//	server → client  {"type":"transcription","participant_identity":"agent","segment_id":"SG_1","text":"Hi","first_received_time":1700000000000,"final":false}
//	server → client  {"type":"leave","reason":"room closed"}
//
// Segments from the local identity are user segments; everything else is agent.
package wsengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-widget/internal/media"
	"voice-widget/internal/service/transcript"
)

// ErrRemoteLeave is reported when the server asks the client to leave.
var ErrRemoteLeave = errors.New("remote ended session")

const (
	frameJoin          = "join"
	frameJoined        = "joined"
	frameTranscription = "transcription"
	frameLeave         = "leave"
)

type joinFrame struct {
	Type               string `json:"type"`
	ICETransportPolicy string `json:"ice_transport_policy"`
	AutoSubscribe      bool   `json:"auto_subscribe"`
	Audio              bool   `json:"audio"`
	Video              bool   `json:"video"`
}

type serverFrame struct {
	Type                string `json:"type"`
	Room                string `json:"room,omitempty"`
	Identity            string `json:"identity,omitempty"`
	ParticipantIdentity string `json:"participant_identity,omitempty"`
	SegmentID           string `json:"segment_id,omitempty"`
	Text                string `json:"text,omitempty"`
	FirstReceivedTime   int64  `json:"first_received_time,omitempty"`
	Final               bool   `json:"final,omitempty"`
	Reason              string `json:"reason,omitempty"`
}

// Dialer implements media.Dialer over a websocket.
type Dialer struct {
	ws               *websocket.Dialer
	handshakeTimeout time.Duration
}

// NewDialer creates a dialer. A zero handshakeTimeout defaults to 15s.
func NewDialer(handshakeTimeout time.Duration) *Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 15 * time.Second
	}
	return &Dialer{
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		handshakeTimeout: handshakeTimeout,
	}
}

// Dial implements media.Dialer. It returns once the server acknowledged the join.
func (d *Dialer) Dial(ctx context.Context, opts media.ConnectOptions, events media.Events) (media.Room, error) {
	if err := media.RequireRelay(opts); err != nil {
		return nil, err
	}

	endpoint, err := signalURL(opts.ServerURL, opts.Token, opts.AutoSubscribe)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.Token)

	conn, resp, err := d.ws.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", redact(endpoint), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", redact(endpoint), err)
	}

	deadline := time.Now().Add(d.handshakeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	join := joinFrame{
		Type:               frameJoin,
		ICETransportPolicy: string(opts.ICETransportPolicy),
		AutoSubscribe:      opts.AutoSubscribe,
		Audio:              opts.Audio,
		Video:              opts.Video,
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send join: %w", err)
	}

	var ack serverFrame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("await join ack: %w", err)
	}
	if ack.Type != frameJoined {
		conn.Close()
		if ack.Type == frameLeave {
			return nil, fmt.Errorf("join rejected: %s: %w", ack.Reason, ErrRemoteLeave)
		}
		return nil, fmt.Errorf("await join ack: unexpected frame %q", ack.Type)
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	r := &room{
		conn:     conn,
		name:     ack.Room,
		identity: ack.Identity,
		user:     transcript.NewSegmentStore(transcript.RoleUser),
		agent:    transcript.NewSegmentStore(transcript.RoleAgent),
		events:   events,
		done:     make(chan struct{}),
		logger: log.With().
			Str("component", "wsengine").
			Str("room", ack.Room).
			Logger(),
	}
	go r.readLoop()

	r.logger.Info().
		Str("identity", ack.Identity).
		Str("iceTransportPolicy", join.ICETransportPolicy).
		Msg("Joined media room")

	return r, nil
}

type room struct {
	conn     *websocket.Conn
	name     string
	identity string
	user     *transcript.SegmentStore
	agent    *transcript.SegmentStore
	events   media.Events
	logger   zerolog.Logger

	mu      sync.Mutex
	closing bool
	done    chan struct{}
}

func (r *room) Name() string                           { return r.name }
func (r *room) LocalIdentity() string                  { return r.identity }
func (r *room) UserTranscriptions() transcript.Source  { return r.user }
func (r *room) AgentTranscriptions() transcript.Source { return r.agent }

// Close sends a normal close frame and closes the connection. It does not
// wait for the read loop, so it is safe to call from an Events callback.
func (r *room) Close() error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil
	}
	r.closing = true
	r.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	_ = r.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return r.conn.Close()
}

// Done is closed when the read loop has exited.
func (r *room) Done() <-chan struct{} {
	return r.done
}

func (r *room) isClosing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

func (r *room) readLoop() {
	defer close(r.done)

	for {
		var f serverFrame
		if err := r.conn.ReadJSON(&f); err != nil {
			if r.isClosing() {
				return
			}
			r.logger.Info().Err(err).Msg("Media connection lost")
			r.conn.Close()
			r.events.OnDisconnected(err)
			return
		}

		switch f.Type {
		case frameTranscription:
			r.applyTranscription(f)
			r.events.OnTranscriptionUpdate()
		case frameLeave:
			r.logger.Info().Str("reason", f.Reason).Msg("Remote ended session")
			r.mu.Lock()
			r.closing = true
			r.mu.Unlock()
			r.conn.Close()
			r.events.OnDisconnected(fmt.Errorf("%w: %s", ErrRemoteLeave, f.Reason))
			return
		default:
			r.logger.Debug().Str("type", f.Type).Msg("Ignoring frame")
		}
	}
}

func (r *room) applyTranscription(f serverFrame) {
	at := time.Now()
	if f.FirstReceivedTime > 0 {
		at = time.UnixMilli(f.FirstReceivedTime)
	}

	// Without a known local identity nothing can be attributed to the user.
	store := r.agent
	if r.identity != "" && f.ParticipantIdentity == r.identity {
		store = r.user
	}

	segmentID := f.SegmentID
	if segmentID == "" {
		segmentID = fmt.Sprintf("%s-%d", f.ParticipantIdentity, at.UnixMilli())
	}

	store.Upsert(segmentID, f.ParticipantIdentity, f.Text, at)
}

// signalURL builds <server>/rtc?access_token=...&auto_subscribe=...,
// mapping http(s) schemes to ws(s).
func signalURL(serverURL, token string, autoSubscribe bool) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/rtc"
	q := u.Query()
	q.Set("access_token", token)
	if autoSubscribe {
		q.Set("auto_subscribe", "1")
	} else {
		q.Set("auto_subscribe", "0")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("access_token") {
		q.Set("access_token", "redacted")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
