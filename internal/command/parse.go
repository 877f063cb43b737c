package command

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/AndreasThinks/nodeice-board/internal/board"
)

// Prefix marks a line as a command.
const Prefix = "!"

// Limits bounds parsed arguments.
type Limits struct {
	// MaxBody is the maximum post or comment body size in bytes, measured
	// after NFC normalization.
	MaxBody int

	// ListDefault is the post count for a bare !list.
	ListDefault int

	// ListMax clamps !list n.
	ListMax int
}

// DefaultLimits matches the configuration defaults.
func DefaultLimits() Limits {
	return Limits{MaxBody: 160, ListDefault: 5, ListMax: 20}
}

// Parse interprets line as a command from a mesh node.
//
// Returns (nil, nil) when the line is not addressed to the board: empty,
// whitespace only, or not starting with "!". Otherwise returns either a
// Command or a *board.Error with code UnknownCommand, MalformedArguments or
// PayloadTooLarge.
func Parse(line string, limits Limits) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, Prefix) {
		return nil, nil
	}

	name, rest := splitToken(strings.TrimPrefix(line, Prefix))

	switch name {
	case "help":
		if rest != "" {
			return nil, malformed(name, rest)
		}
		return Help{}, nil

	case "post":
		body, err := parseBody(name, rest, limits)
		if err != nil {
			return nil, err
		}
		return Post{Body: body}, nil

	case "list":
		n := limits.ListDefault
		if rest != "" {
			v, err := parsePositive(name, rest)
			if err != nil {
				return nil, err
			}
			n = int(min(v, int64(limits.ListMax)))
		}
		n = min(n, limits.ListMax)
		return List{Limit: n}, nil

	case "view":
		id, err := parsePositive(name, rest)
		if err != nil {
			return nil, err
		}
		return View{PostID: id}, nil

	case "comment":
		idTok, bodyText := splitToken(rest)
		id, err := parsePositive(name, idTok)
		if err != nil {
			return nil, err
		}
		body, err := parseBody(name, bodyText, limits)
		if err != nil {
			return nil, err
		}
		return Comment{PostID: id, Body: body}, nil

	case "subscribe":
		scope, err := parseScope(name, rest)
		if err != nil {
			return nil, err
		}
		return Subscribe{Scope: scope}, nil

	case "unsubscribe":
		scope, err := parseScope(name, rest)
		if err != nil {
			return nil, err
		}
		return Unsubscribe{Scope: scope}, nil

	case "subscriptions":
		if rest != "" {
			return nil, malformed(name, rest)
		}
		return Subscriptions{}, nil

	default:
		return nil, board.UnknownCommand(Prefix + name)
	}
}

// splitToken returns the first whitespace-delimited token and the trimmed remainder.
func splitToken(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func parseBody(name, text string, limits Limits) (string, error) {
	body := norm.NFC.String(strings.TrimSpace(text))
	if body == "" {
		return "", malformed(name, "")
	}
	if len(body) > limits.MaxBody {
		return "", board.PayloadTooLarge(len(body), limits.MaxBody)
	}
	return body, nil
}

// parsePositive accepts exactly one token holding an integer > 0.
func parsePositive(name, text string) (int64, error) {
	tok, extra := splitToken(text)
	if tok == "" || extra != "" {
		return 0, malformed(name, text)
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil || v <= 0 {
		return 0, malformed(name, tok)
	}
	return v, nil
}

func parseScope(name, text string) (board.Scope, error) {
	if strings.EqualFold(text, "all") {
		return board.AllScope(), nil
	}
	id, err := parsePositive(name, text)
	if err != nil {
		return board.Scope{}, err
	}
	return board.PostScope(id), nil
}

func malformed(name, token string) *board.Error {
	return board.MalformedArguments(Prefix+name, token, Usage(name))
}
