package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/goevery/realtime/internal/auth"
	"github.com/goevery/realtime/internal/broadcaster"
	"github.com/goevery/realtime/internal/channel"
	"github.com/goevery/realtime/internal/frame"
	"github.com/goevery/realtime/internal/handler"
	"github.com/goevery/realtime/internal/presence"
	"github.com/goevery/realtime/internal/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userId string, ttl time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"user_id":    userId,
		"token_type": "access",
		"exp":        time.Now().Add(ttl).Unix(),
		"iat":        time.Now().Add(-2 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	return tokenString
}

type testServer struct {
	registry  *broadcaster.InMemoryRegistry
	publisher *handler.PublishHandler
	url       *url.URL
}

func newTestServer(t *testing.T, authenticator *auth.Authenticator, allowedOrigins []string) *testServer {
	logger, _ := zap.NewDevelopment()
	registry := broadcaster.NewInMemoryRegistry(logger, 4)
	tracker := presence.NewTracker(logger, registry, false)
	router := NewRouter(handler.NewTypingHandler(registry), handler.NewSeenHandler(registry))
	upgrader := &websocket.Upgrader{
		CheckOrigin: NewOriginChecker(allowedOrigins).Check,
	}

	wsServer := NewWebSocketServer(
		logger,
		upgrader,
		authenticator,
		registry,
		tracker,
		router,
		16,
		session.DefaultSettings(),
	)

	ctx, cancel := context.WithCancel(context.Background())

	mainRouter := mux.NewRouter()
	wsServer.Register(ctx, mainRouter)

	server := httptest.NewServer(mainRouter)
	t.Cleanup(func() {
		cancel()
		registry.Close()
		server.Close()
	})

	u, _ := url.Parse(server.URL)
	u.Scheme = "ws"

	return &testServer{
		registry,
		handler.NewPublishHandler(registry),
		u,
	}
}

func (s *testServer) dial(t *testing.T, path string, token string, header http.Header) (*websocket.Conn, *http.Response, error) {
	u := *s.url
	u.Path = path
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}

	return conn, resp, err
}

func (s *testServer) waitMembers(t *testing.T, name channel.Name, count int) {
	require.Eventually(t, func() bool {
		return len(s.registry.Members(name)) == count
	}, time.Second, 5*time.Millisecond)
}

func readOfType(t *testing.T, conn *websocket.Conn, typ frame.Type) string {
	t.Helper()

	for {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var envelope struct {
			Type frame.Type `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &envelope))
		if envelope.Type == typ {
			return string(data)
		}
	}
}

func readNext(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	return string(data)
}

// expectSilence fails if a frame arrives shortly. The connection cannot be
// read from afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	assert.Error(t, err, "unexpected frame %s", data)
}

func TestWebSocketServer_Notifications(t *testing.T) {
	server := newTestServer(t, auth.NewAuthenticator(testSecret, nil), nil)

	alice, _, err := server.dial(t, "/ws/notifications/", signToken(t, "42", time.Hour), nil)
	require.NoError(t, err)
	bob, _, err := server.dial(t, "/ws/notifications/", signToken(t, "43", time.Hour), nil)
	require.NoError(t, err)

	n42, _ := channel.Notifications("42")
	n43, _ := channel.Notifications("43")
	server.waitMembers(t, n42, 1)
	server.waitMembers(t, n43, 1)

	_, err = server.publisher.Notify("42", map[string]any{"verb": "followed"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"notification","message":{"verb":"followed"}}`, readOfType(t, alice, frame.TypeNotification))
	expectSilence(t, bob)

	alice.Close()
	server.waitMembers(t, n42, 0)
	assert.Equal(t, 1, server.registry.ChannelCount())
}

func TestWebSocketServer_Rejections(t *testing.T) {
	server := newTestServer(t, auth.NewAuthenticator(testSecret, nil), []string{"https://blog.example"})

	tests := []struct {
		name   string
		path   string
		token  string
		header http.Header
		status int
	}{
		{"missing token", "/ws/notifications/", "", nil, http.StatusUnauthorized},
		{"invalid token", "/ws/chat/", "not-a-token", nil, http.StatusUnauthorized},
		{"expired token", "/ws/chat/", signToken(t, "42", -time.Hour), nil, http.StatusUnauthorized},
		{"invalid post id", "/ws/posts/a.b/comments/", "", nil, http.StatusBadRequest},
		{"foreign origin", "/ws/notifications/", signToken(t, "42", time.Hour), http.Header{"Origin": {"https://evil.example"}}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := server.dial(t, tt.path, tt.token, tt.header)

			assert.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	assert.Equal(t, 0, server.registry.ChannelCount())

	t.Run("allowed origin", func(t *testing.T) {
		_, _, err := server.dial(t, "/ws/notifications/", signToken(t, "42", time.Hour), http.Header{"Origin": {"https://blog.example"}})

		assert.NoError(t, err)
	})
}

type failingStore struct{}

func (failingStore) Lookup(ctx context.Context, userId string) (auth.Profile, error) {
	return auth.Profile{}, errors.New("connection refused")
}

func TestWebSocketServer_IdentityStoreUnavailable(t *testing.T) {
	store := auth.NewBreakingStore(zap.NewNop(), failingStore{}, gobreaker.Settings{Name: "test-profiles"})
	authenticator := auth.NewAuthenticator(testSecret, nil, auth.WithIdentityStore(store, 100*time.Millisecond))
	server := newTestServer(t, authenticator, nil)

	_, resp, err := server.dial(t, "/ws/chat/", signToken(t, "42", time.Hour), nil)

	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 0, server.registry.ChannelCount())
}

func TestWebSocketServer_Comments(t *testing.T) {
	server := newTestServer(t, auth.NewAuthenticator(testSecret, nil), nil)

	anonymous, _, err := server.dial(t, "/ws/posts/7/comments/", "", nil)
	require.NoError(t, err)
	member, _, err := server.dial(t, "/ws/posts/7/comments/", signToken(t, "42", time.Hour), nil)
	require.NoError(t, err)

	name, _ := channel.Comments("7")
	server.waitMembers(t, name, 2)

	_, err = server.publisher.PublishComment("7", map[string]any{"id": 1, "body": "first"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"new_comment","comment":{"id":1,"body":"first"}}`, readOfType(t, anonymous, frame.TypeNewComment))
	assert.JSONEq(t, `{"type":"new_comment","comment":{"id":1,"body":"first"}}`, readOfType(t, member, frame.TypeNewComment))

	anonymous.Close()
	server.waitMembers(t, name, 1)

	_, err = server.publisher.PublishComment("7", map[string]any{"id": 2})
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"new_comment","comment":{"id":2}}`, readOfType(t, member, frame.TypeNewComment))
}

func TestWebSocketServer_Chat(t *testing.T) {
	server := newTestServer(t, auth.NewAuthenticator(testSecret, nil), nil)

	alice, _, err := server.dial(t, "/ws/chat/", signToken(t, "42", time.Hour), nil)
	require.NoError(t, err)

	chat42, _ := channel.Chat("42")
	server.waitMembers(t, chat42, 1)

	t.Run("typing without a connected peer", func(t *testing.T) {
		err := alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","receiver_id":43}`))
		require.NoError(t, err)

		assert.JSONEq(t, `{"type":"user_status","user_id":42,"status":"online"}`, readNext(t, alice))
	})

	bob, _, err := server.dial(t, "/ws/chat/", signToken(t, "43", time.Hour), nil)
	require.NoError(t, err)

	chat43, _ := channel.Chat("43")
	server.waitMembers(t, chat43, 1)

	t.Run("presence", func(t *testing.T) {
		// nothing was echoed back to alice in the meantime
		assert.JSONEq(t, `{"type":"user_status","user_id":43,"status":"online"}`, readNext(t, alice))
	})

	t.Run("typing", func(t *testing.T) {
		err := alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","receiver_id":43}`))
		require.NoError(t, err)

		assert.JSONEq(t, `{"type":"typing","sender_id":42}`, readOfType(t, bob, frame.TypeTyping))
	})

	t.Run("malformed frame keeps the connection open", func(t *testing.T) {
		err := bob.WriteMessage(websocket.TextMessage, []byte(`invalid-json`))
		require.NoError(t, err)
		err = bob.WriteMessage(websocket.TextMessage, []byte(`{"type":"seen","sender_id":42,"message_id":"m-1"}`))
		require.NoError(t, err)

		assert.JSONEq(t, `{"type":"seen","sender_id":43,"message_id":"m-1"}`, readNext(t, alice))
	})

	t.Run("chat message", func(t *testing.T) {
		_, err := server.publisher.SendChatMessage("43", map[string]any{"id": 5, "content": "hi"})
		require.NoError(t, err)

		assert.JSONEq(t, `{"type":"chat_message","message":{"id":5,"content":"hi"}}`, readOfType(t, bob, frame.TypeChatMessage))
	})

	t.Run("offline", func(t *testing.T) {
		bob.Close()

		assert.JSONEq(t, `{"type":"user_status","user_id":43,"status":"offline"}`, readNext(t, alice))
		server.waitMembers(t, chat43, 0)
	})
}
