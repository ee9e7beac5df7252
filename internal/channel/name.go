// Package channel builds and validates the names of broadcast channels.
//
// Names are constructed as {purpose}:{id}; the presence channel is a single
// constant. Names must only be produced through the constructors in this
// package so two purposes can never collide on the same key.
package channel

import (
	"errors"
	"regexp"
	"strings"

	"github.com/goevery/realtime/internal/ierr"
)

type Purpose string

const (
	PurposeNotifications Purpose = "notifications"
	PurposeComments      Purpose = "comments"
	PurposeChat          Purpose = "chat"
	PurposePresence      Purpose = "presence"
)

// Name is a validated channel name.
type Name string

// Presence is the global online/offline status channel.
const Presence Name = "online-status"

const maxIdLength = 128

var (
	nameRegex = regexp.MustCompile(`^([\w-]+:?)*\w$`)
	idRegex   = regexp.MustCompile(`^[\w-]*\w$`)

	ErrInvalidName    = errors.New("invalid channel name")
	ErrInvalidId      = errors.New("invalid channel id")
	ErrUnknownPurpose = errors.New("unknown channel purpose")
)

func Notifications(userId string) (Name, error) {
	return build(PurposeNotifications, userId)
}

func Comments(postId string) (Name, error) {
	return build(PurposeComments, postId)
}

func Chat(userId string) (Name, error) {
	return build(PurposeChat, userId)
}

// Parse validates a free-form channel name, as received from a producer.
func Parse(raw string) (Name, error) {
	if Name(raw) == Presence {
		return Presence, nil
	}

	if len(raw) > maxIdLength*2 || !nameRegex.MatchString(raw) {
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, ErrInvalidName)
	}

	purpose, id, ok := strings.Cut(raw, ":")
	if !ok {
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, ErrInvalidName)
	}

	switch Purpose(purpose) {
	case PurposeNotifications, PurposeComments, PurposeChat:
		return build(Purpose(purpose), id)
	default:
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, ErrUnknownPurpose)
	}
}

func (n Name) String() string {
	return string(n)
}

func (n Name) Purpose() Purpose {
	if n == Presence {
		return PurposePresence
	}

	purpose, _, _ := strings.Cut(string(n), ":")

	return Purpose(purpose)
}

// Id returns the identifier part of the name; empty for the presence channel.
func (n Name) Id() string {
	_, id, _ := strings.Cut(string(n), ":")

	return id
}

func build(purpose Purpose, id string) (Name, error) {
	if len(id) == 0 || len(id) > maxIdLength || !idRegex.MatchString(id) {
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, ErrInvalidId)
	}

	return Name(string(purpose) + ":" + id), nil
}
