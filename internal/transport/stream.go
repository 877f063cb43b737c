package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AndreasThinks/nodeice-board/internal/board"
)

// maxLineBytes bounds one inbound JSON line. Radio payloads are tiny; a
// longer line means the peer is not a bridge.
const maxLineBytes = 64 * 1024

// inboundFrame is one line read from the bridge.
type inboundFrame struct {
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	Text     string `json:"text"`
}

// outboundFrame is one line written to the bridge. An empty To broadcasts.
type outboundFrame struct {
	To   string `json:"to,omitempty"`
	Text string `json:"text"`
}

// Stream is a Transport speaking newline-delimited JSON over a byte stream.
//
// A background goroutine decodes inbound lines so that Receive can honor
// context cancellation. Lines that are not valid frames are logged and
// skipped.
//
// Writes honor the context deadline. When w supports write deadlines
// (net.Conn, pollable *os.File) the deadline is set on w; otherwise the
// encode runs in a goroutine and the caller stops waiting when ctx ends.
//
// Thread-safety: Send and Broadcast may be called from any goroutine;
// writes are serialized by a one-slot semaphore.
type Stream struct {
	r          io.Reader
	w          io.Writer
	closer     io.Closer
	maxPayload int
	now        func() time.Time

	inbox chan Message
	done  chan struct{}

	writing chan struct{} // held while enc writes
	enc     *json.Encoder
	readErr error // set before inbox is closed

	closeOnce sync.Once
}

// NewStream starts a Stream over rw. closer may be nil.
func NewStream(r io.Reader, w io.Writer, closer io.Closer, maxPayload int) *Stream {
	s := &Stream{
		r:          r,
		w:          w,
		closer:     closer,
		maxPayload: maxPayload,
		now:        func() time.Time { return time.Now().UTC() },
		inbox:      make(chan Message),
		done:       make(chan struct{}),
		writing:    make(chan struct{}, 1),
		enc:        json.NewEncoder(w),
	}
	s.enc.SetEscapeHTML(false)

	go s.readLoop()
	return s
}

func (s *Stream) readLoop() {
	defer close(s.inbox)

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var f inboundFrame
		if err := json.Unmarshal(line, &f); err != nil {
			slog.Warn("skipping malformed frame", "error", err)
			continue
		}
		if f.From == "" {
			slog.Warn("skipping frame without sender")
			continue
		}

		msg := Message{
			From:       f.From,
			FromName:   f.FromName,
			Text:       f.Text,
			ReceivedAt: s.now(),
		}

		select {
		case s.inbox <- msg:
		case <-s.done:
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.readErr = err
}

// Receive returns the next inbound message.
func (s *Stream) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-s.done:
		return Message{}, ErrClosed
	case msg, ok := <-s.inbox:
		if !ok {
			return Message{}, s.readErr
		}
		return msg, nil
	}
}

// Send writes a direct message frame.
func (s *Stream) Send(ctx context.Context, to, text string) error {
	if to == "" {
		return errors.New("send: empty recipient")
	}
	return s.write(ctx, outboundFrame{To: to, Text: text})
}

// Broadcast writes a channel-wide frame.
func (s *Stream) Broadcast(ctx context.Context, text string) error {
	return s.write(ctx, outboundFrame{Text: text})
}

func (s *Stream) write(ctx context.Context, f outboundFrame) error {
	if len(f.Text) > s.maxPayload {
		return board.PayloadTooLarge(len(f.Text), s.maxPayload)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.writing <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}

	if dw, ok := s.w.(deadlineWriter); ok {
		deadline, _ := ctx.Deadline()
		if err := dw.SetWriteDeadline(deadline); err == nil {
			defer func() { <-s.writing }()
			return s.encode(ctx, f)
		}
	}

	// The goroutine keeps the slot until the write returns, so a stuck
	// writer blocks later writes only until their own contexts end.
	errc := make(chan error, 1)
	go func() {
		defer func() { <-s.writing }()
		errc <- s.encode(ctx, f)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// deadlineWriter is implemented by net.Conn and *os.File.
type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}

func (s *Stream) encode(ctx context.Context, f outboundFrame) error {
	if err := s.enc.Encode(f); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// MaxPayload returns the configured payload limit.
func (s *Stream) MaxPayload() int {
	return s.maxPayload
}

// Close stops the reader and closes the underlying stream.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
