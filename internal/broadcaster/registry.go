package broadcaster

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goevery/realtime/internal/channel"
	"github.com/goevery/realtime/internal/frame"
	"github.com/goevery/realtime/internal/ierr"
	"github.com/goevery/realtime/internal/metrics"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

var (
	ErrRegistryClosed   = errors.New("registry closed")
	ErrConnectionClosed = errors.New("connection closed")
)

//go:generate mockery --name Registry --output broadcastertest --outpkg broadcastertest --structname MockRegistry --filename mock_registry.go

type Registry interface {
	// Join adds the connection to the channel. Joining twice is a no-op.
	Join(name channel.Name, conn *Connection) error

	// Leave removes the connection from the channel. Leaving a channel the
	// connection is not a member of is a no-op.
	Leave(name channel.Name, conn *Connection)

	// LeaveAll removes the connection from every channel and closes its
	// Send queue. Only the first call has an effect.
	LeaveAll(conn *Connection)

	// Broadcast delivers the frame to every current member of the channel
	// without blocking on any of them.
	Broadcast(name channel.Name, f frame.Frame) (Message, error)
}

const DefaultShardCount = 32

type shard struct {
	mu       sync.RWMutex
	channels map[channel.Name]map[string]*Connection
}

// InMemoryRegistry partitions channels over shards so that broadcasts and
// joins on unrelated channels never contend on the same lock.
//
// Lock order is Connection.mu, then connMu or a shard lock. Broadcast only
// takes a shard read lock.
type InMemoryRegistry struct {
	logger *zap.Logger
	shards []*shard

	connMu      sync.Mutex
	connections map[string]*Connection
	closed      atomic.Bool

	channelCount atomic.Int64
}

func NewInMemoryRegistry(
	logger *zap.Logger,
	shardCount int,
) *InMemoryRegistry {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{
			channels: make(map[channel.Name]map[string]*Connection),
		}
	}

	return &InMemoryRegistry{
		logger:      logger,
		shards:      shards,
		connections: make(map[string]*Connection),
	}
}

func (r *InMemoryRegistry) shardFor(name channel.Name) *shard {
	return r.shards[xxhash.Sum64String(string(name))%uint64(len(r.shards))]
}

func (r *InMemoryRegistry) Join(name channel.Name, conn *Connection) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.closed {
		return ierr.New(ierr.ErrorCodeFailedPrecondition, ErrConnectionClosed)
	}

	if _, ok := conn.channels[name]; ok {
		return nil
	}

	r.connMu.Lock()
	if r.closed.Load() {
		r.connMu.Unlock()

		return ierr.New(ierr.ErrorCodeUnavailable, ErrRegistryClosed)
	}
	r.connections[conn.Id] = conn
	r.connMu.Unlock()

	s := r.shardFor(name)
	s.mu.Lock()

	members, ok := s.channels[name]
	if !ok {
		members = make(map[string]*Connection)
		s.channels[name] = members

		r.channelCount.Add(1)
		metrics.ChannelsActive.Inc()
	}
	members[conn.Id] = conn

	s.mu.Unlock()

	conn.channels[name] = struct{}{}

	return nil
}

func (r *InMemoryRegistry) Leave(name channel.Name, conn *Connection) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if _, ok := conn.channels[name]; !ok {
		return
	}

	delete(conn.channels, name)
	r.removeMember(name, conn.Id)
}

func (r *InMemoryRegistry) LeaveAll(conn *Connection) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.closed {
		return
	}
	conn.closed = true

	for name := range conn.channels {
		r.removeMember(name, conn.Id)
	}
	conn.channels = nil

	r.connMu.Lock()
	delete(r.connections, conn.Id)
	r.connMu.Unlock()

	// no broadcaster can still hold conn: it has been removed from every
	// shard under the shard's write lock
	close(conn.Send)
}

// IMPORTANT: It must be called while holding the connection's lock.
func (r *InMemoryRegistry) removeMember(name channel.Name, connectionId string) {
	s := r.shardFor(name)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.channels[name]
	if !ok {
		panic("inconsistent state: channel not found in shard")
	}

	delete(members, connectionId)
	if len(members) == 0 {
		delete(s.channels, name)

		r.channelCount.Add(-1)
		metrics.ChannelsActive.Dec()
	}
}

func (r *InMemoryRegistry) Broadcast(name channel.Name, f frame.Frame) (Message, error) {
	if r.closed.Load() {
		return Message{}, ierr.New(ierr.ErrorCodeUnavailable, ErrRegistryClosed)
	}

	data, err := frame.Encode(f)
	if err != nil {
		return Message{}, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	message := Message{
		Id:         gonanoid.Must(),
		CreateTime: time.Now(),
		Channel:    name,
		Type:       f.Type(),
		Data:       data,
	}

	metrics.Broadcasts.WithLabelValues(string(name.Purpose())).Inc()

	s := r.shardFor(name)
	s.mu.RLock()

	var stale []*Connection
	queued := 0

	for _, conn := range s.channels[name] {
		select {
		case conn.Send <- message:
			queued++
		default:
			stale = append(stale, conn)
		}
	}

	s.mu.RUnlock()

	metrics.Deliveries.WithLabelValues("queued").Add(float64(queued))

	for _, conn := range stale {
		r.logger.Warn("connection send queue is full, closing connection",
			zap.String("connectionId", conn.Id),
			zap.String("channel", name.String()))

		metrics.Deliveries.WithLabelValues("dropped").Inc()

		r.LeaveAll(conn)
	}

	return message, nil
}

// Close tears down every registered connection. Later joins and broadcasts
// fail with ErrRegistryClosed.
func (r *InMemoryRegistry) Close() {
	r.connMu.Lock()
	if r.closed.Swap(true) {
		r.connMu.Unlock()
		return
	}

	connections := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	r.connMu.Unlock()

	for _, conn := range connections {
		r.LeaveAll(conn)
	}

	r.logger.Info("registry closed",
		zap.Int("connectionsClosed", len(connections)))
}

func (r *InMemoryRegistry) ChannelCount() int {
	return int(r.channelCount.Load())
}

// Members returns the ids of the connections currently joined to the channel.
func (r *InMemoryRegistry) Members(name channel.Name) []string {
	s := r.shardFor(name)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.channels[name]))
	for id := range s.channels[name] {
		ids = append(ids, id)
	}

	return ids
}
