package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AndreasThinks/nodeice-board/internal/board"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const lifetime = 7 * 24 * time.Hour

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithRetry(2, time.Millisecond))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustPost creates a post by author at created.
func mustPost(t *testing.T, s *Store, author, body string, created time.Time) board.Post {
	t.Helper()
	p, err := s.CreatePost(context.Background(), board.Post{
		AuthorID:  author,
		Body:      body,
		CreatedAt: created,
		ExpiresAt: created.Add(lifetime),
	})
	require.NoError(t, err)
	return p
}

// mustComment creates a comment on postID by author at created.
func mustComment(t *testing.T, s *Store, postID int64, author, body string, created time.Time) board.Comment {
	t.Helper()
	c, err := s.CreateComment(context.Background(), board.Comment{
		PostID:    postID,
		AuthorID:  author,
		Body:      body,
		CreatedAt: created,
	})
	require.NoError(t, err)
	return c
}

// mustSubscribe subscribes subscriber to scope.
func mustSubscribe(t *testing.T, s *Store, subscriber string, scope board.Scope) {
	t.Helper()
	_, err := s.UpsertSubscription(context.Background(), board.Subscription{
		Subscriber: subscriber,
		Scope:      scope,
		CreatedAt:  t0,
	})
	require.NoError(t, err)
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
