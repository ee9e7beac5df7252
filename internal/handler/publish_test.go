package handler

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/goevery/realtime/internal/auth"
	"github.com/goevery/realtime/internal/broadcaster"
	"github.com/goevery/realtime/internal/broadcaster/broadcastertest"
	"github.com/goevery/realtime/internal/channel"
	"github.com/goevery/realtime/internal/frame"
	"github.com/goevery/realtime/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishHandler_Handle(t *testing.T) {
	publisher := auth.WithAuthentication(context.Background(), &auth.Authentication{
		Subject: "api",
		Scope:   []string{"publish"},
	})

	t.Run("valid request", func(t *testing.T) {
		registry := broadcastertest.NewMockRegistry(t)
		handler := NewPublishHandler(registry)

		name, _ := channel.Notifications("42")
		registry.On("Broadcast", name, mock.MatchedBy(func(f frame.Frame) bool {
			notification, ok := f.(frame.Notification)
			return ok && string(notification.Message.(json.RawMessage)) == `{"text":"hi"}`
		})).Return(broadcaster.Message{Id: "m1", Channel: name, Type: frame.TypeNotification}, nil).Once()

		message, err := handler.Handle(publisher, PublishRequest{
			Channel: "notifications:42",
			Type:    frame.TypeNotification,
			Payload: json.RawMessage(`{"text":"hi"}`),
		})

		require.NoError(t, err)
		assert.Equal(t, "m1", message.Id)
	})

	t.Run("rejected requests", func(t *testing.T) {
		registry := broadcastertest.NewMockRegistry(t)
		handler := NewPublishHandler(registry)

		reader := auth.WithAuthentication(context.Background(), &auth.Authentication{Subject: "reader"})

		tests := []struct {
			name string
			ctx  context.Context
			req  PublishRequest
			code ierr.ErrorCode
		}{
			{"unauthenticated", context.Background(), PublishRequest{"notifications:42", frame.TypeNotification, json.RawMessage(`1`)}, ierr.ErrorCodeUnauthenticated},
			{"not a publisher", reader, PublishRequest{"notifications:42", frame.TypeNotification, json.RawMessage(`1`)}, ierr.ErrorCodePermissionDenied},
			{"invalid channel", publisher, PublishRequest{"notifications:", frame.TypeNotification, json.RawMessage(`1`)}, ierr.ErrorCodeInvalidArgument},
			{"unknown purpose", publisher, PublishRequest{"orders:42", frame.TypeNotification, json.RawMessage(`1`)}, ierr.ErrorCodeInvalidArgument},
			{"presence channel", publisher, PublishRequest{"online-status", frame.TypeNotification, json.RawMessage(`1`)}, ierr.ErrorCodePermissionDenied},
			{"relay type", publisher, PublishRequest{"chat:42", frame.TypeTyping, json.RawMessage(`1`)}, ierr.ErrorCodeInvalidArgument},
			{"missing payload", publisher, PublishRequest{"chat:42", frame.TypeChatMessage, nil}, ierr.ErrorCodeInvalidArgument},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := handler.Handle(tt.ctx, tt.req)

				assert.Equal(t, tt.code, ierr.CodeOf(err))
			})
		}

		registry.AssertNotCalled(t, "Broadcast")
	})

	t.Run("registry closed", func(t *testing.T) {
		registry := broadcaster.NewInMemoryRegistry(zap.NewNop(), 1)
		registry.Close()
		handler := NewPublishHandler(registry)

		_, err := handler.Handle(publisher, PublishRequest{"comments:7", frame.TypeNewComment, json.RawMessage(`{}`)})

		assert.ErrorIs(t, err, broadcaster.ErrRegistryClosed)
		assert.Equal(t, ierr.ErrorCodeUnavailable, ierr.CodeOf(err))
	})
}

func TestPublishHandler_Helpers(t *testing.T) {
	registry := broadcaster.NewInMemoryRegistry(zap.NewNop(), 4)
	handler := NewPublishHandler(registry)

	join := func(name channel.Name) *broadcaster.Connection {
		conn := broadcaster.NewConnection(auth.Identity{UserId: "42"}, 4)
		require.NoError(t, registry.Join(name, conn))
		return conn
	}

	notifications, _ := channel.Notifications("42")
	comments, _ := channel.Comments("7")
	chat, _ := channel.Chat("42")

	notificationsConn := join(notifications)
	commentsConn := join(comments)
	chatConn := join(chat)

	_, err := handler.Notify("42", map[string]any{"verb": "liked"})
	require.NoError(t, err)
	_, err = handler.PublishComment("7", map[string]any{"id": 3})
	require.NoError(t, err)
	_, err = handler.SendChatMessage("42", map[string]any{"id": 5})
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"notification","message":{"verb":"liked"}}`, string((<-notificationsConn.Send).Data))
	assert.JSONEq(t, `{"type":"new_comment","comment":{"id":3}}`, string((<-commentsConn.Send).Data))
	assert.JSONEq(t, `{"type":"chat_message","message":{"id":5}}`, string((<-chatConn.Send).Data))

	_, err = handler.Notify("", "x")
	assert.ErrorIs(t, err, channel.ErrInvalidId)
}
