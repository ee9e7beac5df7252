// Package frame defines the messages exchanged with websocket clients.
//
// Every outbound frame is one of a closed set of variants; Encode dispatches
// over them exhaustively and writes the "type" discriminator the frontend
// switches on.
package frame

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/goevery/realtime/internal/ierr"
)

type Type string

const (
	TypeNotification  Type = "notification"
	TypeNewComment    Type = "new_comment"
	TypeChatMessage   Type = "chat_message"
	TypeTyping        Type = "typing"
	TypeStoppedTyping Type = "stopped_typing"
	TypeSeen          Type = "seen"
	TypeUserStatus    Type = "user_status"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

type Frame interface {
	Type() Type
	frame()
}

type Notification struct {
	Message any
}

type NewComment struct {
	Comment any
}

type ChatMessage struct {
	Message any
}

type Typing struct {
	SenderId Id
}

type StoppedTyping struct {
	SenderId Id
}

type Seen struct {
	SenderId  Id
	MessageId Id
}

type UserStatus struct {
	UserId Id
	Status Status
}

func (Notification) Type() Type  { return TypeNotification }
func (NewComment) Type() Type    { return TypeNewComment }
func (ChatMessage) Type() Type   { return TypeChatMessage }
func (Typing) Type() Type        { return TypeTyping }
func (StoppedTyping) Type() Type { return TypeStoppedTyping }
func (Seen) Type() Type          { return TypeSeen }
func (UserStatus) Type() Type    { return TypeUserStatus }

func (Notification) frame()  {}
func (NewComment) frame()    {}
func (ChatMessage) frame()   {}
func (Typing) frame()        {}
func (StoppedTyping) frame() {}
func (Seen) frame()          {}
func (UserStatus) frame()    {}

type messageWire struct {
	Type    Type `json:"type"`
	Message any  `json:"message"`
}

type commentWire struct {
	Type    Type `json:"type"`
	Comment any  `json:"comment"`
}

type senderWire struct {
	Type      Type `json:"type"`
	SenderId  Id   `json:"sender_id"`
	MessageId Id   `json:"message_id,omitempty"`
}

type userStatusWire struct {
	Type   Type   `json:"type"`
	UserId Id     `json:"user_id"`
	Status Status `json:"status"`
}

// Encode serializes a frame into its wire representation.
func Encode(f Frame) ([]byte, error) {
	var wire any

	switch f := f.(type) {
	case Notification:
		wire = messageWire{TypeNotification, f.Message}
	case NewComment:
		wire = commentWire{TypeNewComment, f.Comment}
	case ChatMessage:
		wire = messageWire{TypeChatMessage, f.Message}
	case Typing:
		wire = senderWire{Type: TypeTyping, SenderId: f.SenderId}
	case StoppedTyping:
		wire = senderWire{Type: TypeStoppedTyping, SenderId: f.SenderId}
	case Seen:
		wire = senderWire{TypeSeen, f.SenderId, f.MessageId}
	case UserStatus:
		wire = userStatusWire{TypeUserStatus, f.UserId, f.Status}
	default:
		return nil, fmt.Errorf("unsupported frame %T", f)
	}

	return json.Marshal(wire)
}

var ErrUnpublishableType = errors.New("frame type cannot be published by producers")

// FromPayload builds a producer frame from its type and raw payload. Only the
// content-carrying frames can be published; relay and presence frames are
// generated by the hub itself.
func FromPayload(typ Type, payload json.RawMessage) (Frame, error) {
	if len(payload) == 0 {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("payload is required"))
	}

	switch typ {
	case TypeNotification:
		return Notification{Message: payload}, nil
	case TypeNewComment:
		return NewComment{Comment: payload}, nil
	case TypeChatMessage:
		return ChatMessage{Message: payload}, nil
	default:
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, fmt.Errorf("%w: %q", ErrUnpublishableType, typ))
	}
}
