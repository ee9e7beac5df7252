package handler

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/goevery/realtime/internal/auth"
	"github.com/goevery/realtime/internal/broadcaster"
	"github.com/goevery/realtime/internal/channel"
	"github.com/goevery/realtime/internal/frame"
	"github.com/goevery/realtime/internal/ierr"
)

type PublishRequest struct {
	Channel string          `json:"channel"`
	Type    frame.Type      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type PublishHandlerInterface interface {
	Handle(ctx context.Context, req PublishRequest) (broadcaster.Message, error)
}

// PublishHandler is the producer side of the hub. Handle serves remote
// producers; the typed helpers serve producers living in the same process.
type PublishHandler struct {
	registry broadcaster.Registry
}

func NewPublishHandler(registry broadcaster.Registry) *PublishHandler {
	return &PublishHandler{
		registry,
	}
}

func (h *PublishHandler) Handle(ctx context.Context, req PublishRequest) (broadcaster.Message, error) {
	authentication, ok := auth.AuthenticationFromContext(ctx)
	if !ok {
		return broadcaster.Message{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("producer not authenticated"))
	}

	if !authentication.IsPublisher() {
		return broadcaster.Message{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("producer not authorized to publish messages"))
	}

	name, err := channel.Parse(req.Channel)
	if err != nil {
		return broadcaster.Message{}, err
	}

	if name == channel.Presence {
		return broadcaster.Message{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("presence channel is managed by the hub"))
	}

	f, err := frame.FromPayload(req.Type, req.Payload)
	if err != nil {
		return broadcaster.Message{}, err
	}

	return h.registry.Broadcast(name, f)
}

// Notify delivers a notification to every connection of the user.
func (h *PublishHandler) Notify(userId string, notification any) (broadcaster.Message, error) {
	name, err := channel.Notifications(userId)
	if err != nil {
		return broadcaster.Message{}, err
	}

	return h.registry.Broadcast(name, frame.Notification{Message: notification})
}

// PublishComment delivers a new comment to everyone watching the post.
func (h *PublishHandler) PublishComment(postId string, comment any) (broadcaster.Message, error) {
	name, err := channel.Comments(postId)
	if err != nil {
		return broadcaster.Message{}, err
	}

	return h.registry.Broadcast(name, frame.NewComment{Comment: comment})
}

// SendChatMessage delivers a direct message to the recipient's chat channel.
func (h *PublishHandler) SendChatMessage(recipientId string, message any) (broadcaster.Message, error) {
	name, err := channel.Chat(recipientId)
	if err != nil {
		return broadcaster.Message{}, err
	}

	return h.registry.Broadcast(name, frame.ChatMessage{Message: message})
}
