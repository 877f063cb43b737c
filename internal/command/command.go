package command

import "github.com/AndreasThinks/nodeice-board/internal/board"

// Command is a parsed board command. The set of implementations is closed.
type Command interface {
	// Name is the command token without the leading "!".
	Name() string

	command()
}

// Help requests the command grammar.
type Help struct{}

// Post creates a post.
type Post struct {
	Body string
}

// List shows the most recent posts.
type List struct {
	Limit int
}

// View shows one post with its latest comments.
type View struct {
	PostID int64
}

// Comment adds a comment to a post.
type Comment struct {
	PostID int64
	Body   string
}

// Subscribe registers the sender for a scope.
type Subscribe struct {
	Scope board.Scope
}

// Unsubscribe removes the sender's subscription for a scope.
type Unsubscribe struct {
	Scope board.Scope
}

// Subscriptions lists the sender's subscriptions.
type Subscriptions struct{}

func (Help) Name() string          { return "help" }
func (Post) Name() string          { return "post" }
func (List) Name() string          { return "list" }
func (View) Name() string          { return "view" }
func (Comment) Name() string       { return "comment" }
func (Subscribe) Name() string     { return "subscribe" }
func (Unsubscribe) Name() string   { return "unsubscribe" }
func (Subscriptions) Name() string { return "subscriptions" }

func (Help) command()          {}
func (Post) command()          {}
func (List) command()          {}
func (View) command()          {}
func (Comment) command()       {}
func (Subscribe) command()     {}
func (Unsubscribe) command()   {}
func (Subscriptions) command() {}

// Usage lines, in the order they appear in help.
var usage = []struct {
	name     string
	synopsis string
	desc     string
}{
	{"post", "!post <message>", "Create a new post"},
	{"list", "!list [n]", "Show n recent posts"},
	{"view", "!view <post_id>", "View a post and its comments"},
	{"comment", "!comment <post_id> <message>", "Comment on a post"},
	{"subscribe", "!subscribe <all|post_id>", "Get notified of new posts or comments"},
	{"unsubscribe", "!unsubscribe <all|post_id>", "Stop notifications"},
	{"subscriptions", "!subscriptions", "Show your subscriptions"},
	{"help", "!help", "Show this help message"},
}

// Grammar returns one "synopsis - description" line per command in help order.
func Grammar() []string {
	lines := make([]string, len(usage))
	for i, u := range usage {
		lines[i] = u.synopsis + " - " + u.desc
	}
	return lines
}

// Usage returns the synopsis of one command, or "" if unknown.
func Usage(name string) string {
	for _, u := range usage {
		if u.name == name {
			return u.synopsis
		}
	}
	return ""
}
