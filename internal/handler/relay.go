package handler

import (
	"context"
	"errors"

	"github.com/goevery/realtime/internal/broadcaster"
	"github.com/goevery/realtime/internal/channel"
	"github.com/goevery/realtime/internal/frame"
	"github.com/goevery/realtime/internal/ierr"
)

var ErrSelfTarget = errors.New("frame targets the sender")

// peerChannel resolves the chat channel of the peer a relay frame is
// addressed to, on behalf of the connection found in ctx.
func peerChannel(ctx context.Context, peer frame.Id) (channel.Name, frame.Id, error) {
	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return "", "", ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("connection not found in context"))
	}

	if connection.Identity.IsAnonymous() {
		return "", "", ierr.New(ierr.ErrorCodePermissionDenied, errors.New("anonymous connections cannot relay frames"))
	}

	me := frame.Id(connection.Identity.UserId)
	if peer == me {
		return "", "", ierr.New(ierr.ErrorCodeInvalidArgument, ErrSelfTarget)
	}

	name, err := channel.Chat(peer.String())
	if err != nil {
		return "", "", err
	}

	return name, me, nil
}
