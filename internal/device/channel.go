package device

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrChannelClosed is returned by a Channel whose peer went away. It ends a
// session normally.
var ErrChannelClosed = errors.New("device: channel closed")

// Channel is one ready-made bidirectional message stream to a player. Receive
// is only called from the session loop; Send calls are serialized by Conn.
type Channel interface {
	Receive(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Conn is a registered player connection.
type Conn struct {
	PlayerID int

	ch        Channel
	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newConn(playerID int, ch Channel) *Conn {
	return &Conn{PlayerID: playerID, ch: ch, done: make(chan struct{})}
}

// Send writes v as one JSON frame. Only one send runs at a time per connection.
func (c *Conn) Send(ctx context.Context, v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.ch.Send(ctx, msg)
}

// Close closes the underlying channel once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.ch.Close()
	})
	return c.closeErr
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
