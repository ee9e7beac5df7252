package server

import (
	"context"
	"fmt"

	"github.com/goevery/realtime/internal/frame"
	"github.com/goevery/realtime/internal/handler"
	"github.com/goevery/realtime/internal/ierr"
)

// Router dispatches inbound chat frames to their handlers.
type Router struct {
	typingHandler handler.TypingHandlerInterface
	seenHandler   handler.SeenHandlerInterface
}

func NewRouter(
	typingHandler handler.TypingHandlerInterface,
	seenHandler handler.SeenHandlerInterface,
) *Router {
	return &Router{
		typingHandler,
		seenHandler,
	}
}

func (r *Router) HandleInbound(ctx context.Context, f frame.Inbound) error {
	switch f.Type {
	case frame.TypeTyping, frame.TypeStoppedTyping:
		return r.typingHandler.Handle(ctx, handler.TypingRequest{
			ReceiverId: f.ReceiverId,
			Stopped:    f.Type == frame.TypeStoppedTyping,
		})
	case frame.TypeSeen:
		return r.seenHandler.Handle(ctx, handler.SeenRequest{
			SenderId:  f.SenderId,
			MessageId: f.MessageId,
		})
	default:
		return ierr.New(ierr.ErrorCodeNotFound, fmt.Errorf("no handler for frame type %q", f.Type))
	}
}
