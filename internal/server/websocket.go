package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/goevery/realtime/internal/auth"
	"github.com/goevery/realtime/internal/broadcaster"
	"github.com/goevery/realtime/internal/ierr"
	"github.com/goevery/realtime/internal/metrics"
	"github.com/goevery/realtime/internal/presence"
	"github.com/goevery/realtime/internal/session"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxMessageSize = 1024

type WebSocketServer struct {
	logger        *zap.Logger
	upgrader      *websocket.Upgrader
	authenticator *auth.Authenticator
	registry      broadcaster.Registry
	tracker       presence.TrackerInterface
	router        session.InboundHandler

	sendBufferSize  int
	sessionSettings session.Settings
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	authenticator *auth.Authenticator,
	registry broadcaster.Registry,
	tracker presence.TrackerInterface,
	router session.InboundHandler,
	sendBufferSize int,
	sessionSettings session.Settings,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		authenticator,
		registry,
		tracker,
		router,
		sendBufferSize,
		sessionSettings,
	}
}

// Register mounts the websocket routes. Sessions started by these routes are
// cancelled when ctx is done.
func (s *WebSocketServer) Register(ctx context.Context, router *mux.Router) {
	router.HandleFunc("/ws/notifications/", s.handle(ctx, session.KindNotifications)).Methods("GET")
	router.HandleFunc("/ws/chat/", s.handle(ctx, session.KindChat)).Methods("GET")
	router.HandleFunc("/ws/posts/{postId}/comments/", s.handle(ctx, session.KindComments)).Methods("GET")
}

func (s *WebSocketServer) handle(ctx context.Context, kind session.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.resolve(r, kind)
		if err != nil {
			status := http.StatusUnauthorized
			if ierr.CodeOf(err) == ierr.ErrorCodeUnavailable {
				status = http.StatusServiceUnavailable
			}

			metrics.AuthRejections.WithLabelValues(rejectionReason(err)).Inc()
			s.logger.Debug("rejecting websocket connection",
				zap.String("kind", string(kind)),
				zap.Error(err))

			http.Error(w, http.StatusText(status), status)
			return
		}

		channels, err := kind.Channels(identity, mux.Vars(r)["postId"])
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		wsConn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		wsConn.SetReadLimit(maxMessageSize)

		conn := broadcaster.NewConnection(identity, s.sendBufferSize)
		session.New(
			s.logger,
			wsConn,
			conn,
			kind,
			channels,
			s.registry,
			s.tracker,
			s.router,
			s.sessionSettings,
		).Run(ctx)
	}
}

// resolve authenticates the request once, before the upgrade. Comment
// streams are public: a missing or unusable credential makes the client
// anonymous instead of rejecting it.
func (s *WebSocketServer) resolve(r *http.Request, kind session.Kind) (auth.Identity, error) {
	token := r.URL.Query().Get("token")

	if !kind.RequiresIdentity() && token == "" {
		return auth.Anonymous, nil
	}

	identity, err := s.authenticator.Resolve(r.Context(), token)
	if err != nil {
		if !kind.RequiresIdentity() {
			s.logger.Debug("falling back to anonymous identity", zap.Error(err))
			return auth.Anonymous, nil
		}

		return auth.Identity{}, err
	}

	return *identity, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		return "missing"
	case errors.Is(err, auth.ErrExpiredCredential):
		return "expired"
	case errors.Is(err, auth.ErrIdentityUnavailable):
		return "unavailable"
	default:
		return "invalid"
	}
}
