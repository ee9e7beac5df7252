package handler

import (
	"context"

	"github.com/goevery/realtime/internal/broadcaster"
	"github.com/goevery/realtime/internal/frame"
)

type TypingRequest struct {
	ReceiverId frame.Id
	Stopped    bool
}

type TypingHandlerInterface interface {
	Handle(ctx context.Context, req TypingRequest) error
}

// TypingHandler tells the receiver that the sender started or stopped
// typing. Nothing happens if the receiver is not connected.
type TypingHandler struct {
	registry broadcaster.Registry
}

func NewTypingHandler(registry broadcaster.Registry) *TypingHandler {
	return &TypingHandler{
		registry,
	}
}

func (h *TypingHandler) Handle(ctx context.Context, req TypingRequest) error {
	name, me, err := peerChannel(ctx, req.ReceiverId)
	if err != nil {
		return err
	}

	var f frame.Frame = frame.Typing{SenderId: me}
	if req.Stopped {
		f = frame.StoppedTyping{SenderId: me}
	}

	_, err = h.registry.Broadcast(name, f)

	return err
}
