package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AndreasThinks/nodeice-board/internal/board"
)

// CreatePost inserts a post and returns it with the assigned id.
// ID is ignored on input; ids come from AUTOINCREMENT and are never reused.
func (t *Tx) CreatePost(ctx context.Context, p board.Post) (board.Post, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO posts (author_id, author_name, body, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		p.AuthorID,
		p.AuthorName,
		p.Body,
		toMillis(p.CreatedAt),
		toMillis(p.ExpiresAt),
	)
	if err != nil {
		return board.Post{}, fmt.Errorf("create post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return board.Post{}, fmt.Errorf("create post: last insert id: %w", err)
	}

	p.ID = id
	p.CreatedAt = fromMillis(toMillis(p.CreatedAt))
	p.ExpiresAt = fromMillis(toMillis(p.ExpiresAt))
	return p, nil
}

// CreateComment inserts a comment. The parent post must exist
// (foreign key constraint).
func (t *Tx) CreateComment(ctx context.Context, c board.Comment) (board.Comment, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO comments (post_id, author_id, author_name, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		c.PostID,
		c.AuthorID,
		c.AuthorName,
		c.Body,
		toMillis(c.CreatedAt),
	)
	if err != nil {
		return board.Comment{}, fmt.Errorf("create comment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return board.Comment{}, fmt.Errorf("create comment: last insert id: %w", err)
	}

	c.ID = id
	c.CreatedAt = fromMillis(toMillis(c.CreatedAt))
	return c, nil
}

// UpsertSubscription inserts the subscription unless the
// (subscriber, scope) pair already exists. Returns true if a row was added.
func (t *Tx) UpsertSubscription(ctx context.Context, sub board.Subscription) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO subscriptions (subscriber, post_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(subscriber, post_id) DO NOTHING
	`,
		sub.Subscriber,
		sub.Scope.PostID(),
		toMillis(sub.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("upsert subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert subscription: rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteSubscription removes the subscription if present.
// Returns true if a row was removed; deleting an absent subscription is not an error.
func (t *Tx) DeleteSubscription(ctx context.Context, subscriber string, scope board.Scope) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE subscriber = ? AND post_id = ?
	`, subscriber, scope.PostID())
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete subscription: rows affected: %w", err)
	}
	return n > 0, nil
}

// DeletePostCascade removes a post, its comments and the subscriptions
// scoped to it. Returns false if the post was already gone.
func (t *Tx) DeletePostCascade(ctx context.Context, id int64) (bool, error) {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete comments of post %d: %w", id, err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE post_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete subscriptions of post %d: %w", id, err)
	}

	res, err := t.tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete post %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete post %d: rows affected: %w", id, err)
	}
	return n > 0, nil
}

// CreatePost inserts a post in its own transaction.
func (s *Store) CreatePost(ctx context.Context, p board.Post) (board.Post, error) {
	var created board.Post
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		created, err = tx.CreatePost(ctx, p)
		return err
	})
	return created, err
}

// CreateComment inserts a comment in its own transaction.
// Returns ErrNotFound if the parent post does not exist.
func (s *Store) CreateComment(ctx context.Context, c board.Comment) (board.Comment, error) {
	var created board.Comment
	err := s.Update(ctx, func(tx *Tx) error {
		if _, err := tx.GetPost(ctx, c.PostID); err != nil {
			return err
		}
		var err error
		created, err = tx.CreateComment(ctx, c)
		return err
	})
	return created, err
}

// UpsertSubscription inserts a subscription in its own transaction.
func (s *Store) UpsertSubscription(ctx context.Context, sub board.Subscription) (bool, error) {
	var created bool
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		created, err = tx.UpsertSubscription(ctx, sub)
		return err
	})
	return created, err
}

// DeleteSubscription removes a subscription in its own transaction.
func (s *Store) DeleteSubscription(ctx context.Context, subscriber string, scope board.Scope) (bool, error) {
	var removed bool
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		removed, err = tx.DeleteSubscription(ctx, subscriber, scope)
		return err
	})
	return removed, err
}

// DeleteExpired removes every post with expires_at <= now together with
// its comments and post-scoped subscriptions.
//
// Each post is deleted in its own transaction so a failure on one post
// does not stop the others. Returns the number of posts removed and the
// joined per-post errors, if any. Running it with nothing eligible is a
// no-op.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var ids []int64
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		ids, err = tx.ExpiredPostIDs(ctx, now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}

	deleted := 0
	var errs []error
	for _, id := range ids {
		var removed bool
		err := s.Update(ctx, func(tx *Tx) error {
			var err error
			removed, err = tx.DeletePostCascade(ctx, id)
			return err
		})
		if err != nil {
			slog.Error("failed to expire post", "post_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		if removed {
			deleted++
		}
	}

	return deleted, errors.Join(errs...)
}
