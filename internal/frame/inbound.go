package frame

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/goevery/realtime/internal/ierr"
)

var ErrMalformed = errors.New("malformed frame")

// Inbound is a frame sent by a chat client. ReceiverId addresses typing
// frames, SenderId addresses seen frames.
type Inbound struct {
	Type       Type `json:"type"`
	ReceiverId Id   `json:"receiver_id"`
	SenderId   Id   `json:"sender_id"`
	MessageId  Id   `json:"message_id"`
}

// Peer returns the user whose chat channel the frame is relayed to.
func (f Inbound) Peer() Id {
	if f.Type == TypeSeen {
		return f.SenderId
	}

	return f.ReceiverId
}

func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, malformed(err)
	}

	switch in.Type {
	case "":
		return Inbound{}, malformed(errors.New("missing type"))
	case TypeTyping, TypeStoppedTyping, TypeSeen:
	default:
		return Inbound{}, malformed(fmt.Errorf("unknown type %q", in.Type))
	}

	if in.Peer() == "" {
		return Inbound{}, malformed(fmt.Errorf("%s frame without target", in.Type))
	}

	return in, nil
}

func malformed(cause error) error {
	return ierr.New(ierr.ErrorCodeInvalidArgument, fmt.Errorf("%w: %w", ErrMalformed, cause))
}
