package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/goevery/realtime/internal/auth"
	"github.com/goevery/realtime/internal/handler"
	"github.com/goevery/realtime/internal/ierr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RESTServer struct {
	logger *zap.Logger

	publishHandler   handler.PublishHandlerInterface
	heartbeatHandler handler.HeartbeatHandlerInterface
	authenticator    *auth.Authenticator
}

func NewRESTServer(
	logger *zap.Logger,
	publishHandler handler.PublishHandlerInterface,
	heartbeatHandler handler.HeartbeatHandlerInterface,
	authenticator *auth.Authenticator,
) *RESTServer {
	return &RESTServer{
		logger,
		publishHandler,
		heartbeatHandler,
		authenticator,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/broadcast", s.handleBroadcast).Methods("POST", "OPTIONS")
	router.HandleFunc("/heartbeat", s.handleHeartbeat).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

func (s *RESTServer) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == "OPTIONS" {
		return
	}

	apiKey, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		apiKey = ""
	}

	authentication, err := s.authenticator.AuthenticateAPIKey(apiKey)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var publishRequest handler.PublishRequest
	err = json.NewDecoder(r.Body).Decode(&publishRequest)
	if err != nil {
		s.writeError(w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid request body")))
		return
	}

	ctx := auth.WithAuthentication(r.Context(), authentication)

	message, err := s.publishHandler.Handle(ctx, publishRequest)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, message)
}

func (s *RESTServer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.heartbeatHandler.Handle())
}

func (s *RESTServer) writeError(w http.ResponseWriter, err error) {
	var handlerErr ierr.Error
	if !errors.As(err, &handlerErr) {
		s.logger.Error("unexpected error in rest handler", zap.Error(err))
		handlerErr = ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
	}

	s.writeJSON(w, statusOf(handlerErr.Code), handlerErr)
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func statusOf(code ierr.ErrorCode) int {
	switch code {
	case ierr.ErrorCodeInvalidArgument:
		return http.StatusBadRequest
	case ierr.ErrorCodeNotFound:
		return http.StatusNotFound
	case ierr.ErrorCodeAlreadyExists:
		return http.StatusConflict
	case ierr.ErrorCodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case ierr.ErrorCodePermissionDenied:
		return http.StatusForbidden
	case ierr.ErrorCodeUnauthenticated:
		return http.StatusUnauthorized
	case ierr.ErrorCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
