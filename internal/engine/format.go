package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/AndreasThinks/nodeice-board/internal/board"
	"github.com/AndreasThinks/nodeice-board/internal/command"
)

const (
	// listPreviewMax is the preview length of a list entry when space allows.
	listPreviewMax = 30

	// listPreviewMin is the shortest preview worth sending. Entries that
	// cannot get this much are dropped from the end of the list.
	listPreviewMin = 8

	// authorMax bounds display names inside replies.
	authorMax = 16

	// tokenMax bounds echoed user input in error replies.
	tokenMax = 20

	// SummaryMax bounds the body excerpt carried by events.
	SummaryMax = 40
)

// Reply texts that carry no arguments.
const (
	replyNoPosts          = "No posts found."
	replyNoComments       = "No comments yet."
	replyNoSubscriptions  = "You have no subscriptions."
	replyStoreUnavailable = "Sorry, the board is unavailable right now. Please try again later."
)

// timeAgo renders the age of t relative to now.
func timeAgo(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return t.Format("Jan 02")
	}
}

func author(name string) string {
	return board.Truncate(name, authorMax)
}

// pack joins lines into as few messages as possible, each at most budget
// bytes. A line longer than budget is truncated on its own.
func pack(lines []string, budget int) []string {
	var msgs []string
	var cur strings.Builder

	for _, line := range lines {
		line = board.Truncate(line, budget)
		if cur.Len() > 0 && cur.Len()+1+len(line) > budget {
			msgs = append(msgs, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		msgs = append(msgs, cur.String())
	}
	return msgs
}

func formatHelp(boardName, infoURL string, budget int) []string {
	lines := append([]string{boardName + " Commands:"}, command.Grammar()...)
	if infoURL != "" {
		lines = append(lines, "More info: "+infoURL)
	}
	return pack(lines, budget)
}

func formatPostCreated(id int64) string {
	return fmt.Sprintf("Post #%d created successfully!", id)
}

func formatCommentAdded(postID int64) string {
	return fmt.Sprintf("Comment added to post #%d", postID)
}

// formatList renders posts (newest first) into one message of at most
// budget bytes.
//
// Every entry keeps its id, author and age. Previews share the remaining
// space evenly up to listPreviewMax bytes each; if that leaves fewer than
// listPreviewMin bytes per entry, the oldest entries are dropped until the
// rest fit.
func formatList(posts []board.Post, now time.Time, budget int) string {
	if len(posts) == 0 {
		return replyNoPosts
	}

	const header = "Recent posts:"

	type entry struct {
		prefix, suffix, body string
	}
	entries := make([]entry, len(posts))
	for i, p := range posts {
		entries[i] = entry{
			prefix: fmt.Sprintf("\n#%d: ", p.ID),
			suffix: fmt.Sprintf(" (%s, %s)", author(p.Author()), timeAgo(now, p.CreatedAt)),
			body:   p.Body,
		}
	}

	for n := len(entries); n > 0; n-- {
		fixed := len(header)
		for _, e := range entries[:n] {
			fixed += len(e.prefix) + len(e.suffix)
		}

		per := min(listPreviewMax, (budget-fixed)/n)
		if per < listPreviewMin {
			continue
		}

		var b strings.Builder
		b.WriteString(header)
		for _, e := range entries[:n] {
			b.WriteString(e.prefix)
			b.WriteString(board.Preview(e.body, per))
			b.WriteString(e.suffix)
		}
		return b.String()
	}

	// Not even one entry fits with a minimal preview.
	e := entries[0]
	return board.Truncate(header+e.prefix+board.Preview(e.body, listPreviewMax)+e.suffix, budget)
}

// formatView renders a post followed by its latest comments. The post line
// leads the first message; comment lines are packed after it.
func formatView(p board.Post, comments []board.Comment, total int, now time.Time, budget int) []string {
	lines := []string{
		fmt.Sprintf("Post #%d (%s, %s): %s", p.ID, author(p.Author()), timeAgo(now, p.CreatedAt), p.Body),
	}

	if total == 0 {
		lines = append(lines, replyNoComments)
		return pack(lines, budget)
	}

	if len(comments) < total {
		lines = append(lines, fmt.Sprintf("Comments (latest %d of %d):", len(comments), total))
	} else {
		lines = append(lines, fmt.Sprintf("Comments (%d):", total))
	}
	for _, c := range comments {
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", author(c.Author()), timeAgo(now, c.CreatedAt), c.Body))
	}
	return pack(lines, budget)
}

func formatSubscribed(scope board.Scope, created bool) string {
	switch {
	case scope.All() && created:
		return "Subscribed to all new posts and comments."
	case scope.All():
		return "You are already subscribed to all posts."
	case created:
		return fmt.Sprintf("Subscribed to post #%d.", scope.PostID())
	default:
		return fmt.Sprintf("You are already subscribed to post #%d.", scope.PostID())
	}
}

func formatUnsubscribed(scope board.Scope, removed bool) string {
	switch {
	case scope.All() && removed:
		return "Unsubscribed from all posts."
	case scope.All():
		return "You were not subscribed to all posts."
	case removed:
		return fmt.Sprintf("Unsubscribed from post #%d.", scope.PostID())
	default:
		return fmt.Sprintf("You were not subscribed to post #%d.", scope.PostID())
	}
}

// formatSubscriptions lists scopes with a short preview of each scoped post.
func formatSubscriptions(subs []board.Subscription, now time.Time, budget int) []string {
	if len(subs) == 0 {
		return []string{replyNoSubscriptions}
	}

	lines := []string{"Your subscriptions:"}
	for _, s := range subs {
		switch {
		case s.Scope.All():
			lines = append(lines, "- all posts")
		case s.Post == nil || s.Post.Expired(now):
			lines = append(lines, fmt.Sprintf("- #%d (expired)", s.Scope.PostID()))
		default:
			lines = append(lines, fmt.Sprintf("- #%d: %s (%s)",
				s.Post.ID, board.Preview(s.Post.Body, listPreviewMax), author(s.Post.Author())))
		}
	}
	return pack(lines, budget)
}

// formatError turns a classified error into the reply for the sender.
// Anything unclassified is reported as the board being unavailable.
func formatError(err error, budget int) string {
	be, ok := board.AsError(err)
	if !ok {
		return replyStoreUnavailable
	}

	var text string
	switch be.Code {
	case board.ErrCodeUnknownCommand:
		text = fmt.Sprintf("Unknown command %s. Send !help for available commands.",
			board.Truncate(be.Token, tokenMax))
	case board.ErrCodeMalformedArguments:
		if be.Token == "" {
			text = fmt.Sprintf("Missing arguments. Usage: %s", be.Usage)
		} else {
			text = fmt.Sprintf("Invalid argument %q. Usage: %s", board.Truncate(be.Token, tokenMax), be.Usage)
		}
	case board.ErrCodeNotFound:
		text = fmt.Sprintf("Post #%d not found.", be.PostID)
	case board.ErrCodePayloadTooLarge:
		text = fmt.Sprintf("Message too long (%d bytes, max %d). Please shorten it.", be.Size, be.Limit)
	default:
		text = replyStoreUnavailable
	}
	return board.Truncate(text, budget)
}
