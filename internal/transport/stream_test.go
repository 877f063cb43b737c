package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreasThinks/nodeice-board/internal/board"
)

func TestStream_ReceiveDecodesFrames(t *testing.T) {
	in := strings.NewReader(
		`{"from":"!a1","from_name":"Alice","text":"!list"}` + "\n" +
			"\n" +
			`not json` + "\n" +
			`{"text":"no sender"}` + "\n" +
			`{"from":"!b2","text":"!post hi"}` + "\n",
	)
	s := NewStream(in, io.Discard, nil, 200)
	defer s.Close()

	ctx := context.Background()

	msg, err := s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "!a1", msg.From)
	assert.Equal(t, "Alice", msg.FromName)
	assert.Equal(t, "!list", msg.Text)
	assert.False(t, msg.ReceivedAt.IsZero())

	msg, err = s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "!b2", msg.From)
	assert.Equal(t, "", msg.FromName)

	_, err = s.Receive(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_ReceiveHonorsContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	s := NewStream(r, io.Discard, r, 200)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStream_SendAndBroadcastFrames(t *testing.T) {
	var out bytes.Buffer
	s := NewStream(strings.NewReader(""), &out, nil, 200)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Send(ctx, "!a1", "Post #1 created successfully!"))
	require.NoError(t, s.Broadcast(ctx, "<b> & co"))

	assert.Equal(t,
		`{"to":"!a1","text":"Post #1 created successfully!"}`+"\n"+
			`{"text":"<b> & co"}`+"\n",
		out.String())
}

func TestStream_RejectsOversizedText(t *testing.T) {
	var out bytes.Buffer
	s := NewStream(strings.NewReader(""), &out, nil, 10)
	defer s.Close()

	err := s.Send(context.Background(), "!a1", "this is longer than ten")
	require.Error(t, err)
	assert.True(t, board.IsCode(err, board.ErrCodePayloadTooLarge))
	assert.Empty(t, out.String())
}

func TestStream_SendRequiresRecipient(t *testing.T) {
	s := NewStream(strings.NewReader(""), io.Discard, nil, 200)
	defer s.Close()

	assert.Error(t, s.Send(context.Background(), "", "hi"))
}

func TestStream_ClosedRejectsSends(t *testing.T) {
	s := NewStream(strings.NewReader(""), io.Discard, nil, 200)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.Send(context.Background(), "!a1", "hi")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStream_SendHonorsDeadlineOnStalledWriter(t *testing.T) {
	// Nobody reads from pr, so every write blocks.
	pr, pw := io.Pipe()
	defer pr.Close()
	s := NewStream(strings.NewReader(""), pw, pw, 200)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Send(ctx, "!a1", "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	// The first frame still holds the writer; later sends give up on their
	// own deadline too.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	start = time.Now()
	assert.ErrorIs(t, s.Broadcast(ctx2, "again"), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStream_SendSetsConnWriteDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	s := NewStream(client, client, client, 200)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.Error(t, s.Send(ctx, "!a1", "hello"))
	assert.Less(t, time.Since(start), time.Second)

	// Once the peer reads again, a send without deadline goes through.
	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := server.Read(buf)
		got <- string(buf[:n])
	}()
	require.NoError(t, s.Send(context.Background(), "!b2", "back"))
	assert.Contains(t, <-got, `"to":"!b2"`)
}

func TestOpen_UnixSocket(t *testing.T) {
	sock := t.TempDir() + "/bridge.sock"
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	tr, err := Open(context.Background(), Config{Kind: "unix", Address: sock, MaxPayload: 200})
	require.NoError(t, err)
	defer tr.Close()

	conn := <-accepted
	defer conn.Close()

	_, err = conn.Write([]byte(`{"from":"!c3","text":"!help"}` + "\n"))
	require.NoError(t, err)

	msg, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "!c3", msg.From)
	assert.Equal(t, "!help", msg.Text)
}

func TestOpen_GivesUpAfterRetries(t *testing.T) {
	cfg := Config{
		Kind:          "unix",
		Address:       t.TempDir() + "/missing.sock",
		MaxPayload:    200,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 2 * time.Millisecond,
	}

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded (3 attempts)")
}

func TestOpen_UnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Config{Kind: "serial"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"serial"`)
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.attempt, time.Second, 30*time.Second), "attempt %d", tt.attempt)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory(20)
	ctx := context.Background()

	m.Inject("!a1", "Alice", "!list")
	msg, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "!a1", msg.From)

	require.NoError(t, m.Send(ctx, "!a1", "one"))
	require.NoError(t, m.Broadcast(ctx, "all"))

	boom := errors.New("radio busy")
	m.FailFor("!b2", boom)
	assert.ErrorIs(t, m.Send(ctx, "!b2", "two"), boom)

	err = m.Send(ctx, "!a1", strings.Repeat("x", 21))
	assert.True(t, board.IsCode(err, board.ErrCodePayloadTooLarge))

	assert.Equal(t, []Sent{{To: "!a1", Text: "one"}, {To: "", Text: "all"}}, m.Sent())
	assert.Equal(t, []string{"one"}, m.SentTo("!a1"))

	m.EndInput()
	_, err = m.Receive(ctx)
	assert.ErrorIs(t, err, io.EOF)
}
