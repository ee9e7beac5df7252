package handler

import (
	"context"

	"github.com/goevery/realtime/internal/broadcaster"
	"github.com/goevery/realtime/internal/frame"
)

type SeenRequest struct {
	SenderId  frame.Id
	MessageId frame.Id
}

type SeenHandlerInterface interface {
	Handle(ctx context.Context, req SeenRequest) error
}

// SeenHandler tells the author of a conversation that the reader has seen
// their messages, up to MessageId when given.
type SeenHandler struct {
	registry broadcaster.Registry
}

func NewSeenHandler(registry broadcaster.Registry) *SeenHandler {
	return &SeenHandler{
		registry,
	}
}

func (h *SeenHandler) Handle(ctx context.Context, req SeenRequest) error {
	name, me, err := peerChannel(ctx, req.SenderId)
	if err != nil {
		return err
	}

	_, err = h.registry.Broadcast(name, frame.Seen{
		SenderId:  me,
		MessageId: req.MessageId,
	})

	return err
}
