package auth

import (
	"context"
	"errors"

	"github.com/goevery/realtime/internal/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrUnknownUser = errors.New("unknown user")

// Profile holds the display attributes of a user.
type Profile struct {
	UserId   string
	Username string
	FullName string
	Image    string
}

type IdentityStore interface {
	// Lookup returns ErrUnknownUser when the user does not exist.
	Lookup(ctx context.Context, userId string) (Profile, error)
}

// BreakingStore guards an IdentityStore with a circuit breaker so that a
// failing store rejects handshakes immediately instead of timing out each one.
type BreakingStore struct {
	store IdentityStore
	cb    *gobreaker.CircuitBreaker[Profile]
}

func NewBreakingStore(logger *zap.Logger, store IdentityStore, settings gobreaker.Settings) *BreakingStore {
	if settings.Name == "" {
		settings.Name = "identity-store"
	}

	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}

	// unknown users are answers, not store failures
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrUnknownUser)
	}

	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))

		metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}

	metrics.CircuitBreakerState.WithLabelValues(settings.Name).Set(float64(gobreaker.StateClosed))

	return &BreakingStore{
		store: store,
		cb:    gobreaker.NewCircuitBreaker[Profile](settings),
	}
}

func (s *BreakingStore) Lookup(ctx context.Context, userId string) (Profile, error) {
	return s.cb.Execute(func() (Profile, error) {
		return s.store.Lookup(ctx, userId)
	})
}

func (s *BreakingStore) State() gobreaker.State {
	return s.cb.State()
}
