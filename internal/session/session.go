// Package session drives a single client connection: it joins the default
// channels for the connection's kind, writes queued broadcasts to the
// transport, relays inbound chat frames and tears everything down once.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goevery/realtime/internal/auth"
	"github.com/goevery/realtime/internal/broadcaster"
	"github.com/goevery/realtime/internal/channel"
	"github.com/goevery/realtime/internal/frame"
	"github.com/goevery/realtime/internal/metrics"
	"github.com/goevery/realtime/internal/presence"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Kind string

const (
	KindNotifications Kind = "notifications"
	KindComments      Kind = "comments"
	KindChat          Kind = "chat"
)

// RequiresIdentity reports whether anonymous clients are rejected.
func (k Kind) RequiresIdentity() bool {
	return k != KindComments
}

// Channels returns the channels a session of this kind joins on open.
// postId is only used by comment sessions.
func (k Kind) Channels(identity auth.Identity, postId string) ([]channel.Name, error) {
	switch k {
	case KindNotifications:
		name, err := channel.Notifications(identity.UserId)
		return []channel.Name{name}, err
	case KindComments:
		name, err := channel.Comments(postId)
		return []channel.Name{name}, err
	case KindChat:
		name, err := channel.Chat(identity.UserId)
		return []channel.Name{name, channel.Presence}, err
	default:
		return nil, fmt.Errorf("unknown session kind %q", k)
	}
}

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the subset of *websocket.Conn used by a session.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// InboundHandler handles a decoded inbound frame. The connection that sent
// it is available through broadcaster.ConnectionFromContext.
type InboundHandler interface {
	HandleInbound(ctx context.Context, f frame.Inbound) error
}

type InboundHandlerFunc func(ctx context.Context, f frame.Inbound) error

func (fn InboundHandlerFunc) HandleInbound(ctx context.Context, f frame.Inbound) error {
	return fn(ctx, f)
}

type Settings struct {
	WriteWait    time.Duration
	PongWait     time.Duration
	PingPeriod   time.Duration
	InboundRate  rate.Limit
	InboundBurst int
}

func DefaultSettings() Settings {
	return Settings{
		WriteWait:    10 * time.Second,
		PongWait:     60 * time.Second,
		PingPeriod:   54 * time.Second,
		InboundRate:  10,
		InboundBurst: 20,
	}
}

type Session struct {
	logger    *zap.Logger
	transport Transport
	conn      *broadcaster.Connection
	kind      Kind
	channels  []channel.Name

	registry broadcaster.Registry
	tracker  presence.TrackerInterface
	handler  InboundHandler

	settings Settings
	limiter  *rate.Limiter

	state     atomic.Int32
	announced bool
	closeOnce sync.Once
}

func New(
	logger *zap.Logger,
	transport Transport,
	conn *broadcaster.Connection,
	kind Kind,
	channels []channel.Name,
	registry broadcaster.Registry,
	tracker presence.TrackerInterface,
	handler InboundHandler,
	settings Settings,
) *Session {
	return &Session{
		logger: logger.With(
			zap.String("connectionId", conn.Id),
			zap.String("userId", conn.Identity.UserId),
			zap.String("kind", string(kind))),
		transport: transport,
		conn:      conn,
		kind:      kind,
		channels:  channels,
		registry:  registry,
		tracker:   tracker,
		handler:   handler,
		settings:  settings,
		limiter:   rate.NewLimiter(settings.InboundRate, settings.InboundBurst),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Run opens the session and blocks until it is closed, either by the client,
// by the registry or by ctx being cancelled.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(broadcaster.WithConnection(ctx, s.conn))
	defer cancel()
	defer s.close()

	if err := s.open(); err != nil {
		s.logger.Warn("failed to open session", zap.Error(err))
		return
	}

	_ = s.transport.SetReadDeadline(time.Now().Add(s.settings.PongWait))
	s.transport.SetPongHandler(func(string) error {
		return s.transport.SetReadDeadline(time.Now().Add(s.settings.PongWait))
	})

	inbound := make(chan []byte)
	go s.readLoop(ctx, inbound)

	ticker := time.NewTicker(s.settings.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("session cancelled")
			return

		case data, ok := <-inbound:
			if !ok {
				return
			}
			s.handleInbound(ctx, data)

		case message, ok := <-s.conn.Send:
			if !ok {
				s.logger.Info("connection removed from registry")
				return
			}

			_ = s.transport.SetWriteDeadline(time.Now().Add(s.settings.WriteWait))
			if err := s.transport.WriteMessage(websocket.TextMessage, message.Data); err != nil {
				s.logger.Debug("failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(s.settings.WriteWait)
			if err := s.transport.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("failed to write ping", zap.Error(err))
				return
			}
		}
	}
}

func (s *Session) open() error {
	for _, name := range s.channels {
		if err := s.registry.Join(name, s.conn); err != nil {
			return err
		}
	}

	s.state.Store(int32(StateOpen))
	metrics.ConnectionsActive.WithLabelValues(string(s.kind)).Inc()

	if s.kind == KindChat {
		s.tracker.Online(s.conn.Identity)
		s.announced = true
	}

	s.logger.Info("session opened",
		zap.Int("channels", len(s.channels)))

	return nil
}

func (s *Session) readLoop(ctx context.Context, inbound chan<- []byte) {
	defer close(inbound)

	for {
		messageType, data, err := s.transport.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("unexpected close", zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		select {
		case inbound <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) handleInbound(ctx context.Context, data []byte) {
	if s.kind != KindChat {
		metrics.InboundFrames.WithLabelValues("ignored").Inc()
		s.logger.Debug("ignoring inbound frame on a non-chat session")
		return
	}

	if !s.limiter.Allow() {
		metrics.InboundFrames.WithLabelValues("rate_limited").Inc()
		s.logger.Debug("inbound frame rate limited")
		return
	}

	f, err := frame.DecodeInbound(data)
	if err != nil {
		metrics.InboundFrames.WithLabelValues("malformed").Inc()
		s.logger.Debug("dropping malformed frame", zap.Error(err))
		return
	}

	if err := s.handler.HandleInbound(ctx, f); err != nil {
		if errors.Is(err, broadcaster.ErrRegistryClosed) {
			s.logger.Warn("failed to relay frame", zap.Error(err))
		} else {
			s.logger.Debug("dropping inbound frame", zap.String("type", string(f.Type)), zap.Error(err))
		}
		metrics.InboundFrames.WithLabelValues("ignored").Inc()
		return
	}

	metrics.InboundFrames.WithLabelValues("relayed").Inc()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		wasOpen := s.State() == StateOpen
		s.state.Store(int32(StateClosed))

		s.registry.LeaveAll(s.conn)

		if s.announced {
			s.tracker.Offline(s.conn.Identity)
		}

		if err := s.transport.Close(); err != nil {
			s.logger.Debug("failed to close transport", zap.Error(err))
		}

		if wasOpen {
			metrics.ConnectionsActive.WithLabelValues(string(s.kind)).Dec()
		}

		s.logger.Info("session closed")
	})
}
