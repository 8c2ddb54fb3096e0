package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/painscout/internal/content"
)

func rssFeed(now time.Time) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>r/freelance</title>
  <item>
    <title>Client has not paid in 90 days</title>
    <link>https://www.reddit.com/r/freelance/comments/abc123/</link>
    <guid>t3_abc123</guid>
    <pubDate>%s</pubDate>
    <description>&lt;p&gt;I sent the &lt;b&gt;final invoice&lt;/b&gt; three months ago.&lt;/p&gt;</description>
  </item>
  <item>
    <title>Ancient post</title>
    <link>https://www.reddit.com/r/freelance/comments/old999/</link>
    <guid>t3_old999</guid>
    <pubDate>%s</pubDate>
    <description>From long ago</description>
  </item>
</channel>
</rss>`, now.Add(-2*time.Hour).Format(time.RFC1123Z), now.Add(-400*24*time.Hour).Format(time.RFC1123Z))
}

func TestFeedSourceSearchPosts(t *testing.T) {
	now := time.Now().UTC()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed(now))
	}))
	defer srv.Close()

	src := NewFeedSource(srv.URL+"/r/%s/new.rss", "", 0)
	items, err := src.SearchPosts(context.Background(), Query{Container: "freelance", After: now.Add(-30 * 24 * time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, []string{"/r/freelance/new.rss"}, paths)
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, "abc123", it.ID)
	assert.Equal(t, content.KindPost, it.Kind)
	assert.Equal(t, "Client has not paid in 90 days", it.Title)
	assert.Equal(t, "freelance", it.Container)
	assert.Contains(t, it.Body, "final invoice")
	assert.NotContains(t, it.Body, "<b>")
	assert.False(t, it.CreatedAt.IsZero())
}

func TestFeedSourceWithoutCommentFeed(t *testing.T) {
	src := NewFeedSource("http://127.0.0.1:1/%s", "", 0)
	items, err := src.SearchComments(context.Background(), Query{Container: "freelance"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFeedSourceErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFeedSource(srv.URL+"/%s", "", 0).SearchPosts(context.Background(), Query{Container: "freelance"})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "plain text", htmlToText("plain text", ""))
	assert.Contains(t, htmlToText("<span>a &amp; b</span>", ""), "a & b")
}
