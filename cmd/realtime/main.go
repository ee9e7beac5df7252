package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/goevery/realtime/internal/auth"
	"github.com/goevery/realtime/internal/auth/mongodb"
	"github.com/goevery/realtime/internal/broadcaster"
	"github.com/goevery/realtime/internal/handler"
	"github.com/goevery/realtime/internal/presence"
	"github.com/goevery/realtime/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/thejerf/suture/v4"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	registry        *broadcaster.InMemoryRegistry
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
	mongoClient     *mongo.Client
}

func NewApp(ctx context.Context, logger *zap.Logger, settings Settings) (*App, error) {
	originChecker := server.NewOriginChecker(settings.GetAllowedOrigins())
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	var authOptions []auth.Option
	if settings.JWTAudience != "" {
		authOptions = append(authOptions, auth.WithAudience(settings.JWTAudience))
	}

	var mongoClient *mongo.Client
	if settings.MongoURI != "" {
		client, err := mongo.Connect(options.Client().ApplyURI(settings.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		mongoClient = client

		identityStore := mongodb.NewIdentityStore(client, settings.MongoDatabase)
		if err := identityStore.Setup(ctx); err != nil {
			return nil, fmt.Errorf("failed to setup identity store: %w", err)
		}

		breakingStore := auth.NewBreakingStore(logger, identityStore, gobreaker.Settings{
			Name: "identity-store",
		})
		authOptions = append(authOptions, auth.WithIdentityStore(breakingStore, settings.IdentityTimeout()))
	}

	authenticator := auth.NewAuthenticator(settings.JWTSecret, settings.GetAPIKeys(), authOptions...)

	registry := broadcaster.NewInMemoryRegistry(logger, settings.RegistryShards)
	tracker := presence.NewTracker(logger, registry, settings.PresenceAggregate)

	heartbeatHandler := handler.NewHeartbeatHandler()
	typingHandler := handler.NewTypingHandler(registry)
	seenHandler := handler.NewSeenHandler(registry)
	publishHandler := handler.NewPublishHandler(registry)

	router := server.NewRouter(
		typingHandler,
		seenHandler,
	)

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		authenticator,
		registry,
		tracker,
		router,
		settings.SendBufferSize,
		settings.SessionSettings(),
	)
	restServer := server.NewRESTServer(
		logger,
		publishHandler,
		heartbeatHandler,
		authenticator,
	)

	return &App{
		logger,
		settings,
		registry,
		websocketServer,
		restServer,
		mongoClient,
	}, nil
}

func (a *App) run(ctx context.Context) error {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	router := mux.NewRouter()
	if a.settings.BasePath != "" {
		router = router.PathPrefix(a.settings.BasePath).Subrouter()
	}

	a.websocketServer.Register(notifyCtx, router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", a.settings.Port),
		Handler: router,
	}

	supervisor := suture.New("realtime", suture.Spec{
		EventHook: func(event suture.Event) {
			a.logger.Warn("supervisor event",
				zap.String("event", event.String()))
		},
		Timeout: a.settings.ShutdownTimeout(),
	})
	supervisor.Add(&httpService{
		a.logger,
		httpServer,
		a.registry,
		a.settings.ShutdownTimeout(),
	})

	err := supervisor.Serve(notifyCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(context.Background()); err != nil {
			a.logger.Warn("failed to disconnect from mongodb", zap.Error(err))
		}
	}

	return nil
}

func main() {
	ctx := context.Background()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		panic(fmt.Sprintf("failed to parse settings from environment: %v", err))
	}

	logger, err := buildZapLogger(settings.LogEncoding)
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	defer logger.Sync()

	app, err := NewApp(ctx, logger, settings)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}

	err = app.run(ctx)
	if err != nil {
		logger.Fatal("failed to run", zap.Error(err))
	}
}
