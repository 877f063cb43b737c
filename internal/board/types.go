package board

import (
	"fmt"
	"time"
)

// Post is a notice board entry. ID is store-assigned and never reused.
type Post struct {
	ID         int64
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the post is past its lifetime at now.
// A post expires at exactly ExpiresAt.
func (p Post) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Author returns the display name when the transport supplied one,
// otherwise the node identifier.
func (p Post) Author() string {
	return displayName(p.AuthorID, p.AuthorName)
}

// Comment is an immutable reply to a post.
type Comment struct {
	ID         int64
	PostID     int64
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// Author returns the display name when known, otherwise the node identifier.
func (c Comment) Author() string {
	return displayName(c.AuthorID, c.AuthorName)
}

func displayName(id, name string) string {
	if name != "" {
		return name
	}
	return id
}

// Scope selects what a subscription covers. The zero value is ALL.
type Scope struct {
	postID int64
}

// AllScope covers every new post and every comment.
func AllScope() Scope {
	return Scope{}
}

// PostScope covers comments on a single post.
func PostScope(id int64) Scope {
	return Scope{postID: id}
}

// All reports whether the scope is ALL.
func (s Scope) All() bool {
	return s.postID == 0
}

// PostID returns the scoped post id, or 0 for ALL.
func (s Scope) PostID() int64 {
	return s.postID
}

func (s Scope) String() string {
	if s.All() {
		return "all"
	}
	return fmt.Sprintf("#%d", s.postID)
}

// Subscription is unique per (Subscriber, Scope).
type Subscription struct {
	Subscriber string
	Scope      Scope
	CreatedAt  time.Time

	// Post is populated for post-scoped subscriptions when listing.
	Post *Post
}

// EventKind distinguishes notification events.
type EventKind int

const (
	// EventNewPost is emitted once per created post.
	EventNewPost EventKind = iota + 1
	// EventNewComment is emitted once per created comment.
	EventNewComment
)

func (k EventKind) String() string {
	switch k {
	case EventNewPost:
		return "new_post"
	case EventNewComment:
		return "new_comment"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a notification produced by a committed mutation.
//
// Recipients is resolved inside the same transaction as the mutation, so it
// reflects subscriptions as of commit time. It is deduplicated and never
// contains AuthorID.
type Event struct {
	Kind       EventKind
	PostID     int64
	CommentID  int64
	AuthorID   string
	AuthorName string
	Summary    string
	Recipients []string
	CreatedAt  time.Time
}

// Author returns the display name when known, otherwise the node identifier.
func (e Event) Author() string {
	return displayName(e.AuthorID, e.AuthorName)
}

// Stats are the aggregate counts exposed to the display subsystem.
type Stats struct {
	ActivePosts        int `json:"active_posts"`
	TotalComments      int `json:"total_comments"`
	TotalMessages      int `json:"total_messages"`
	UniqueAuthors      int `json:"unique_authors"`
	TotalSubscriptions int `json:"total_subscriptions"`
}
