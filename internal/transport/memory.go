package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/AndreasThinks/nodeice-board/internal/board"
)

// Sent is one outbound text captured by Memory. An empty To is a broadcast.
type Sent struct {
	To   string
	Text string
}

// Memory is an in-process Transport for tests.
//
// Inject queues inbound messages; Sent returns everything written so far.
// FailFor makes sends to a given node fail.
type Memory struct {
	maxPayload int

	inbox chan Message
	done  chan struct{}

	mu      sync.Mutex
	sent    []Sent
	failFor map[string]error

	closeOnce sync.Once
}

// NewMemory creates a Memory transport with the given payload limit.
func NewMemory(maxPayload int) *Memory {
	return &Memory{
		maxPayload: maxPayload,
		inbox:      make(chan Message, 64),
		done:       make(chan struct{}),
		failFor:    make(map[string]error),
	}
}

// Inject queues an inbound message from node.
func (m *Memory) Inject(from, fromName, text string) {
	m.inbox <- Message{From: from, FromName: fromName, Text: text, ReceivedAt: time.Now().UTC()}
}

// EndInput makes Receive return io.EOF once queued messages are drained.
func (m *Memory) EndInput() {
	close(m.inbox)
}

// FailFor makes every send to node return err.
func (m *Memory) FailFor(node string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[node] = err
}

// Sent returns a copy of all captured outbound texts in send order.
func (m *Memory) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// SentTo returns the texts sent directly to node.
func (m *Memory) SentTo(node string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var texts []string
	for _, s := range m.sent {
		if s.To == node {
			texts = append(texts, s.Text)
		}
	}
	return texts
}

// Receive returns the next injected message.
func (m *Memory) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-m.done:
		return Message{}, ErrClosed
	case msg, ok := <-m.inbox:
		if !ok {
			return Message{}, io.EOF
		}
		return msg, nil
	}
}

// Send captures a direct message.
func (m *Memory) Send(ctx context.Context, to, text string) error {
	return m.record(ctx, to, text)
}

// Broadcast captures a channel-wide message.
func (m *Memory) Broadcast(ctx context.Context, text string) error {
	return m.record(ctx, "", text)
}

func (m *Memory) record(ctx context.Context, to, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(text) > m.maxPayload {
		return board.PayloadTooLarge(len(text), m.maxPayload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	if err, ok := m.failFor[to]; ok {
		return err
	}
	m.sent = append(m.sent, Sent{To: to, Text: text})
	return nil
}

// MaxPayload returns the configured payload limit.
func (m *Memory) MaxPayload() int {
	return m.maxPayload
}

// Close stops Receive and rejects further sends.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
