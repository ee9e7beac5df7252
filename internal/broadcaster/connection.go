package broadcaster

import (
	"context"
	"sync"

	"github.com/goevery/realtime/internal/auth"
	"github.com/goevery/realtime/internal/channel"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Connection is the registry's handle on one live client. Send is only
// written by the registry and only read by the connection's own session;
// it is closed when the connection leaves the registry for good.
type Connection struct {
	Id       string
	Identity auth.Identity
	Send     chan Message

	mu       sync.Mutex
	channels map[channel.Name]struct{}
	closed   bool
}

func NewConnection(identity auth.Identity, bufferSize int) *Connection {
	return &Connection{
		Id:       gonanoid.Must(),
		Identity: identity,
		Send:     make(chan Message, bufferSize),
		channels: make(map[channel.Name]struct{}),
	}
}

func (c *Connection) GetUserId() string {
	return c.Identity.UserId
}

// Channels returns a snapshot of the channels the connection has joined.
func (c *Connection) Channels() []channel.Name {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]channel.Name, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}

	return names
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
