package content

import (
	"strings"
	"time"
)

// Kind distinguishes posts from comments.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// Item is an archived post or comment, normalized into one shape.
type Item struct {
	ID           string
	Kind         Kind
	Title        string // posts only
	Body         string
	Container    string
	Score        int
	CommentCount int
	CreatedAt    time.Time
	Permalink    string
}

// Text returns the title and body joined for matching and embedding.
func (it Item) Text() string {
	title := strings.TrimSpace(it.Title)
	body := strings.TrimSpace(it.Body)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	}
	return title + "\n" + body
}

// Excerpt returns a single-line preview of at most n bytes, cut on a rune boundary.
func (it Item) Excerpt(n int) string {
	s := strings.Join(strings.Fields(it.Text()), " ")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// TitleOnly returns a copy of a post whose body is replaced by its title.
func (it Item) TitleOnly() Item {
	cp := it
	cp.Body = it.Title
	return cp
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
