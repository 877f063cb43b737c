package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AndreasThinks/nodeice-board/internal/board"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// GetPost retrieves a post by id, expired or not.
// Returns ErrNotFound if no such post exists.
func (t *Tx) GetPost(ctx context.Context, id int64) (board.Post, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, author_id, author_name, body, created_at, expires_at
		FROM posts
		WHERE id = ?
	`, id)

	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return board.Post{}, ErrNotFound
	}
	if err != nil {
		return board.Post{}, fmt.Errorf("get post %d: %w", id, err)
	}
	return p, nil
}

// ListRecentPosts returns up to limit posts that have not expired at now,
// newest first. Ties on created_at are broken by id descending.
//
// Returns an empty slice (not nil) if there are none.
func (t *Tx) ListRecentPosts(ctx context.Context, now time.Time, limit int) ([]board.Post, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, author_id, author_name, body, created_at, expires_at
		FROM posts
		WHERE expires_at > ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []board.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// ListComments returns the most recent limit comments of a post in
// chronological order (oldest of the selection first).
func (t *Tx) ListComments(ctx context.Context, postID int64, limit int) ([]board.Comment, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, post_id, author_id, author_name, body, created_at FROM (
			SELECT id, post_id, author_id, author_name, body, created_at
			FROM comments
			WHERE post_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC
	`, postID, limit)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := []board.Comment{}
	for rows.Next() {
		var c board.Comment
		var created int64
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorName, &c.Body, &created); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = fromMillis(created)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// CountComments returns the number of comments on a post.
func (t *Tx) CountComments(ctx context.Context, postID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE post_id = ?`, postID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

// ListSubscriptions returns a subscriber's subscriptions, ALL first, then
// by post id. Post-scoped entries carry their post when it still exists.
func (t *Tx) ListSubscriptions(ctx context.Context, subscriber string) ([]board.Subscription, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT s.subscriber, s.post_id, s.created_at,
		       p.id, p.author_id, p.author_name, p.body, p.created_at, p.expires_at
		FROM subscriptions s
		LEFT JOIN posts p ON p.id = s.post_id
		WHERE s.subscriber = ?
		ORDER BY s.post_id ASC
	`, subscriber)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []board.Subscription{}
	for rows.Next() {
		var (
			sub            board.Subscription
			postID         int64
			created        int64
			pID            sql.NullInt64
			pAuthor, pName sql.NullString
			pBody          sql.NullString
			pCreated       sql.NullInt64
			pExpires       sql.NullInt64
		)
		if err := rows.Scan(&sub.Subscriber, &postID, &created,
			&pID, &pAuthor, &pName, &pBody, &pCreated, &pExpires); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.CreatedAt = fromMillis(created)
		if postID == 0 {
			sub.Scope = board.AllScope()
		} else {
			sub.Scope = board.PostScope(postID)
		}
		if pID.Valid {
			sub.Post = &board.Post{
				ID:         pID.Int64,
				AuthorID:   pAuthor.String,
				AuthorName: pName.String,
				Body:       pBody.String,
				CreatedAt:  fromMillis(pCreated.Int64),
				ExpiresAt:  fromMillis(pExpires.Int64),
			}
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// ResolveRecipients returns the subscribers that should be notified of ev:
// every ALL subscriber, plus for comments every subscriber of ev.PostID.
// The author is excluded and each subscriber appears once, sorted.
func (t *Tx) ResolveRecipients(ctx context.Context, ev board.Event) ([]string, error) {
	scoped := int64(-1)
	if ev.Kind == board.EventNewComment {
		scoped = ev.PostID
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT DISTINCT subscriber
		FROM subscriptions
		WHERE (post_id = 0 OR post_id = ?) AND subscriber != ?
		ORDER BY subscriber COLLATE BINARY ASC
	`, scoped, ev.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	recipients := []string{}
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return recipients, nil
}

// ExpiredPostIDs returns the ids of posts with expires_at <= now, oldest first.
func (t *Tx) ExpiredPostIDs(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id FROM posts WHERE expires_at <= ? ORDER BY id ASC
	`, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("query expired posts: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired posts: %w", err)
	}
	return ids, nil
}

// Stats returns aggregate counts as of now.
func (t *Tx) Stats(ctx context.Context, now time.Time) (board.Stats, error) {
	var st board.Stats
	var totalPosts int
	err := t.tx.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM posts WHERE expires_at > ?),
			(SELECT COUNT(*) FROM posts),
			(SELECT COUNT(*) FROM comments),
			(SELECT COUNT(*) FROM (SELECT author_id FROM posts UNION SELECT author_id FROM comments)),
			(SELECT COUNT(*) FROM subscriptions)
	`, toMillis(now)).Scan(&st.ActivePosts, &totalPosts, &st.TotalComments, &st.UniqueAuthors, &st.TotalSubscriptions)
	if err != nil {
		return board.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	st.TotalMessages = totalPosts + st.TotalComments
	return st, nil
}

func scanPost(row scanner) (board.Post, error) {
	var p board.Post
	var created, expires int64
	if err := row.Scan(&p.ID, &p.AuthorID, &p.AuthorName, &p.Body, &created, &expires); err != nil {
		return board.Post{}, err
	}
	p.CreatedAt = fromMillis(created)
	p.ExpiresAt = fromMillis(expires)
	return p, nil
}

// GetPost retrieves a post by id in its own transaction.
func (s *Store) GetPost(ctx context.Context, id int64) (board.Post, error) {
	var p board.Post
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		p, err = tx.GetPost(ctx, id)
		return err
	})
	return p, err
}

// ListRecentPosts returns up to limit non-expired posts, newest first.
func (s *Store) ListRecentPosts(ctx context.Context, now time.Time, limit int) ([]board.Post, error) {
	var posts []board.Post
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		posts, err = tx.ListRecentPosts(ctx, now, limit)
		return err
	})
	return posts, err
}

// ListComments returns the latest limit comments of a post, oldest first.
func (s *Store) ListComments(ctx context.Context, postID int64, limit int) ([]board.Comment, error) {
	var comments []board.Comment
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		comments, err = tx.ListComments(ctx, postID, limit)
		return err
	})
	return comments, err
}

// ListSubscriptions returns a subscriber's subscriptions.
func (s *Store) ListSubscriptions(ctx context.Context, subscriber string) ([]board.Subscription, error) {
	var subs []board.Subscription
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		subs, err = tx.ListSubscriptions(ctx, subscriber)
		return err
	})
	return subs, err
}

// ResolveRecipients returns the deduplicated recipient set for ev.
func (s *Store) ResolveRecipients(ctx context.Context, ev board.Event) ([]string, error) {
	var recipients []string
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		recipients, err = tx.ResolveRecipients(ctx, ev)
		return err
	})
	return recipients, err
}

// Stats returns aggregate counts as of now.
func (s *Store) Stats(ctx context.Context, now time.Time) (board.Stats, error) {
	var st board.Stats
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		st, err = tx.Stats(ctx, now)
		return err
	})
	return st, err
}
