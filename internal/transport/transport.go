package transport

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Receive and Send after Close.
var ErrClosed = errors.New("transport closed")

// Message is one inbound text from a mesh node.
type Message struct {
	// From is the sender's node identifier, e.g. "!a1b2c3d4".
	From string

	// FromName is the sender's display name when the bridge knows it.
	FromName string

	Text       string
	ReceivedAt time.Time
}

// Transport is a bidirectional text link to the mesh.
type Transport interface {
	// Receive blocks until the next inbound message arrives, ctx is done,
	// or the link ends. A finished link returns io.EOF.
	Receive(ctx context.Context) (Message, error)

	// Send delivers text to one node.
	Send(ctx context.Context, to, text string) error

	// Broadcast delivers text to every node on the channel.
	Broadcast(ctx context.Context, text string) error

	// MaxPayload is the largest text, in bytes, a single send may carry.
	MaxPayload() int

	Close() error
}
