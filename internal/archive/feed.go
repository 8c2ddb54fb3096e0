package archive

import (
	"context"
	"fmt"
	stdhtml "html"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/painscout/internal/content"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// FeedSource reads containers from RSS/Atom feeds. Feeds carry only their newest
// entries, so every query returns at most one page filtered to the window.
type FeedSource struct {
	postsURL    string // fmt template taking the container name
	commentsURL string
	parser      *gofeed.Parser
	limiter     *RateLimiter
}

// NewFeedSource creates a feed-backed archive. commentsURL may be empty.
func NewFeedSource(postsURL, commentsURL string, requestsPerSecond float64) *FeedSource {
	parser := gofeed.NewParser()
	parser.UserAgent = "painscout/1.0 (problem research)"
	return &FeedSource{
		postsURL:    postsURL,
		commentsURL: commentsURL,
		parser:      parser,
		limiter:     NewRateLimiter(requestsPerSecond),
	}
}

// SearchPosts returns feed entries of the container inside the query window.
func (f *FeedSource) SearchPosts(ctx context.Context, q Query) ([]content.Item, error) {
	return f.search(ctx, f.postsURL, q, content.KindPost)
}

// SearchComments returns comment-feed entries, or nothing when no comment feed is configured.
func (f *FeedSource) SearchComments(ctx context.Context, q Query) ([]content.Item, error) {
	if f.commentsURL == "" {
		return nil, nil
	}
	return f.search(ctx, f.commentsURL, q, content.KindComment)
}

func (f *FeedSource) search(ctx context.Context, tmpl string, q Query, kind content.Kind) ([]content.Item, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feedURL := fmt.Sprintf(tmpl, url.PathEscape(q.Container))
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing feed %s: %v", ErrTransient, feedURL, err)
	}

	var items []content.Item
	for _, entry := range feed.Items {
		if len(items) >= q.PageSize() {
			break
		}
		item, ok := feedItem(entry, q.Container, kind)
		if !ok || !inWindow(item.CreatedAt, q) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func feedItem(entry *gofeed.Item, container string, kind content.Kind) (content.Item, bool) {
	id := entry.GUID
	if id == "" {
		id = entry.Link
	}
	if id == "" {
		return content.Item{}, false
	}
	for _, prefix := range []string{"t3_", "t1_"} {
		id = strings.TrimPrefix(id, prefix)
	}

	var created time.Time
	if entry.PublishedParsed != nil {
		created = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		created = entry.UpdatedParsed.UTC()
	}

	body := entry.Content
	if body == "" {
		body = entry.Description
	}

	item := content.Item{
		ID:        id,
		Kind:      kind,
		Body:      htmlToText(body, entry.Link),
		Container: container,
		CreatedAt: created,
		Permalink: entry.Link,
	}
	if kind == content.KindPost {
		item.Title = strings.TrimSpace(entry.Title)
	}
	return item, true
}

func inWindow(t time.Time, q Query) bool {
	if t.IsZero() {
		return true // benefit of the doubt
	}
	if !q.After.IsZero() && !t.After(q.After) {
		return false
	}
	if !q.Before.IsZero() && !t.Before(q.Before) {
		return false
	}
	return true
}

// htmlToText extracts readable text from an HTML fragment.
func htmlToText(html, link string) string {
	html = strings.TrimSpace(html)
	if html == "" || !strings.Contains(html, "<") {
		return html
	}
	base, _ := url.Parse(link)
	article, err := readability.FromReader(strings.NewReader(html), base)
	if err == nil {
		if text := strings.Join(strings.Fields(article.TextContent), " "); text != "" {
			return text
		}
	}
	// Readability gives up on very short fragments.
	text := stdhtml.UnescapeString(tagPattern.ReplaceAllString(html, " "))
	return strings.Join(strings.Fields(text), " ")
}
