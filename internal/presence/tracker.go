// Package presence announces users coming online and going offline on the
// global presence channel.
package presence

import (
	"errors"
	"sync"

	"github.com/goevery/realtime/internal/auth"
	"github.com/goevery/realtime/internal/broadcaster"
	"github.com/goevery/realtime/internal/channel"
	"github.com/goevery/realtime/internal/frame"
	"go.uber.org/zap"
)

type TrackerInterface interface {
	Online(identity auth.Identity)
	Offline(identity auth.Identity)
}

// Tracker emits one status frame per connection transition. In aggregated
// mode it keeps a count of open connections per user and only emits when
// the first connection opens or the last one closes.
type Tracker struct {
	logger    *zap.Logger
	registry  broadcaster.Registry
	aggregate bool

	mu     sync.Mutex
	counts map[string]int
}

func NewTracker(
	logger *zap.Logger,
	registry broadcaster.Registry,
	aggregate bool,
) *Tracker {
	return &Tracker{
		logger:    logger,
		registry:  registry,
		aggregate: aggregate,
		counts:    make(map[string]int),
	}
}

func (t *Tracker) Online(identity auth.Identity) {
	if identity.IsAnonymous() {
		return
	}

	if !t.aggregate {
		t.announce(identity, frame.StatusOnline)
		return
	}

	// announcing under the lock keeps each user's frames in count order
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[identity.UserId]++
	if t.counts[identity.UserId] == 1 {
		t.announce(identity, frame.StatusOnline)
	}
}

func (t *Tracker) Offline(identity auth.Identity) {
	if identity.IsAnonymous() {
		return
	}

	if !t.aggregate {
		t.announce(identity, frame.StatusOffline)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	count, ok := t.counts[identity.UserId]
	if !ok {
		return
	}

	if count > 1 {
		t.counts[identity.UserId] = count - 1
		return
	}

	delete(t.counts, identity.UserId)
	t.announce(identity, frame.StatusOffline)
}

func (t *Tracker) announce(identity auth.Identity, status frame.Status) {
	_, err := t.registry.Broadcast(channel.Presence, frame.UserStatus{
		UserId: frame.Id(identity.UserId),
		Status: status,
	})
	if errors.Is(err, broadcaster.ErrRegistryClosed) {
		t.logger.Debug("registry closed, user status not broadcast",
			zap.String("userId", identity.UserId),
			zap.String("status", string(status)))
		return
	}
	if err != nil {
		t.logger.Warn("failed to broadcast user status",
			zap.String("userId", identity.UserId),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
