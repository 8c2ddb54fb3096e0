package collect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/painscout/internal/archive"
	"github.com/TobiSchelling/painscout/internal/content"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// fakeSource serves posts per container, honouring window bounds unless ignoreWindow is set.
type fakeSource struct {
	posts        map[string][]content.Item
	comments     map[string][]content.Item
	fail         map[string]bool
	ignoreWindow bool
	queries      []archive.Query
}

func (f *fakeSource) SearchPosts(_ context.Context, q archive.Query) ([]content.Item, error) {
	return f.search(f.posts, q)
}

func (f *fakeSource) SearchComments(_ context.Context, q archive.Query) ([]content.Item, error) {
	return f.search(f.comments, q)
}

func (f *fakeSource) search(data map[string][]content.Item, q archive.Query) ([]content.Item, error) {
	f.queries = append(f.queries, q)
	if f.fail[q.Container] {
		return nil, fmt.Errorf("%w: unavailable", archive.ErrTransient)
	}
	items := append([]content.Item(nil), data[q.Container]...)
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	var out []content.Item
	for _, it := range items {
		if !f.ignoreWindow {
			if !q.After.IsZero() && !it.CreatedAt.After(q.After) {
				continue
			}
			if !q.Before.IsZero() && !it.CreatedAt.Before(q.Before) {
				continue
			}
		}
		out = append(out, it)
		if len(out) == q.PageSize() {
			break
		}
	}
	return out, nil
}

// spread returns n posts evenly spaced every interval, newest at testNow-interval.
func spread(prefix string, n int, interval time.Duration) []content.Item {
	items := make([]content.Item, n)
	for i := range items {
		items[i] = content.Item{
			ID:        fmt.Sprintf("%s%d", prefix, i),
			Kind:      content.KindPost,
			Title:     "post",
			CreatedAt: testNow.Add(-time.Duration(i+1) * interval),
		}
	}
	return items
}

func newTestFetcher(src archive.Source, cfg Config) *Fetcher {
	f := NewFetcher(src, cfg)
	f.now = func() time.Time { return testNow }
	return f
}

func TestVelocity(t *testing.T) {
	assert.Zero(t, Velocity(nil))
	assert.Zero(t, Velocity(spread("a", 1, time.Hour)))
	// 11 posts two hours apart span 20h: 10 gaps over 0.833 days.
	assert.InDelta(t, 12.0, Velocity(spread("a", 11, 2*time.Hour)), 0.01)
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierHigh, TierFor(20.5))
	assert.Equal(t, TierMedium, TierFor(20))
	assert.Equal(t, TierMedium, TierFor(5))
	assert.Equal(t, TierLow, TierFor(4.9))
	assert.Equal(t, TierLow, TierFor(0))
}

func TestPlanFor(t *testing.T) {
	assert.Len(t, PlanFor(TierHigh, 365*day), 3)
	assert.Len(t, PlanFor(TierMedium, 365*day), 2)
	low := PlanFor(TierLow, 365*day)
	require.Len(t, low, 1)
	assert.Equal(t, Window{0, 365 * day}, low[0])
}

func TestClipDropsOutOfRangeWindows(t *testing.T) {
	bounds := TimeRange{Start: testNow.Add(-60 * day), End: testNow}
	got := Clip(PlanFor(TierHigh, 365*day), testNow, bounds)
	require.Len(t, got, 2)
	assert.Equal(t, testNow.Add(-30*day), got[0].Start)
	assert.Equal(t, bounds.Start, got[1].Start, "second window clipped to range start")
}

func TestFetchHighVelocityUsesThreeWindows(t *testing.T) {
	src := &fakeSource{posts: map[string][]content.Item{"busy": spread("p", 9000, time.Hour)}}
	r, err := newTestFetcher(src, Config{}).Fetch(context.Background(), []string{"busy"}, 90, nil)
	require.NoError(t, err)

	require.Len(t, r.Sources, 1)
	assert.Equal(t, TierHigh, r.Sources[0].Tier)
	assert.Equal(t, 3, r.Sources[0].Windows)
	assert.Len(t, r.Items, 90)

	// The last window reaches content older than 180 days.
	oldest := r.Items[len(r.Items)-1].CreatedAt
	assert.True(t, oldest.Before(testNow.Add(-180*day)))
}

func TestFetchPaginatesWithCursor(t *testing.T) {
	src := &fakeSource{posts: map[string][]content.Item{"quiet": spread("p", 300, 48*time.Hour)}}
	r, err := newTestFetcher(src, Config{SampleSize: 10}).Fetch(context.Background(), []string{"quiet"}, 150, nil)
	require.NoError(t, err)

	assert.Equal(t, TierLow, r.Sources[0].Tier)
	assert.Len(t, r.Items, 150)

	// sample + two pages (100, then 50 plus the repeated oldest post)
	require.Len(t, src.queries, 3)
	assert.Equal(t, 100, src.queries[1].Limit)
	assert.Equal(t, 51, src.queries[2].Limit)
	assert.True(t, src.queries[2].Before.Before(src.queries[1].Before))
	assert.Zero(t, r.Duplicates, "cursor overlap is not a duplicate")
}

func TestFetchKeepsSameSecondPostsAcrossPages(t *testing.T) {
	posts := spread("p", 150, 48*time.Hour)
	posts[100].CreatedAt = posts[99].CreatedAt
	posts[101].CreatedAt = posts[99].CreatedAt
	src := &fakeSource{posts: map[string][]content.Item{"quiet": posts}}

	r, err := newTestFetcher(src, Config{SampleSize: 10}).Fetch(context.Background(), []string{"quiet"}, 150, nil)
	require.NoError(t, err)

	got := make(map[string]bool)
	for _, it := range r.Items {
		got[it.ID] = true
	}
	assert.Len(t, r.Items, 150)
	for _, id := range []string{"p99", "p100", "p101", "p149"} {
		assert.True(t, got[id], "missing %s", id)
	}
	assert.Zero(t, r.Duplicates)
}

func TestFetchStopsWhenPageBringsNothingNew(t *testing.T) {
	// The source ignores the cursor, so every page repeats the newest 100.
	posts := spread("p", 200, time.Hour)
	src := &fakeSource{posts: map[string][]content.Item{"stuck": posts}, ignoreWindow: true}

	r, err := newTestFetcher(src, Config{SampleSize: 5}).Fetch(context.Background(), []string{"stuck"}, 600, nil)
	require.NoError(t, err)
	assert.Equal(t, TierHigh, r.Sources[0].Tier)
	assert.Len(t, r.Items, 100)
	// sample, two pages in the first window, one in each of the others
	assert.Len(t, src.queries, 5)
}

func TestFetchDeduplicatesAcrossWindows(t *testing.T) {
	src := &fakeSource{
		posts:        map[string][]content.Item{"busy": spread("p", 50, time.Hour)},
		ignoreWindow: true,
	}
	r, err := newTestFetcher(src, Config{}).Fetch(context.Background(), []string{"busy"}, 300, nil)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, it := range r.Items {
		assert.False(t, seen[it.ID], "duplicate id %s", it.ID)
		seen[it.ID] = true
	}
	assert.Len(t, r.Items, 50)
	assert.Positive(t, r.Duplicates)
}

func TestFetchSkipsFailedSource(t *testing.T) {
	src := &fakeSource{
		posts: map[string][]content.Item{"ok": spread("p", 20, 24*time.Hour)},
		fail:  map[string]bool{"down": true},
	}
	r, err := newTestFetcher(src, Config{}).Fetch(context.Background(), []string{"down", "ok"}, 40, nil)
	require.NoError(t, err)
	assert.Len(t, r.Items, 20)
	require.Len(t, r.Sources, 2)
	assert.True(t, r.Sources[0].Failed())
	assert.False(t, r.Sources[1].Failed())
}

func TestFetchAllSourcesFailed(t *testing.T) {
	src := &fakeSource{fail: map[string]bool{"a": true, "b": true}}
	_, err := newTestFetcher(src, Config{}).Fetch(context.Background(), []string{"a", "b"}, 10, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllSourcesFailed))
}

func TestFetchSplitsCommentShare(t *testing.T) {
	src := &fakeSource{
		posts:    map[string][]content.Item{"c": spread("p", 100, 48*time.Hour)},
		comments: map[string][]content.Item{"c": spread("c", 100, 48*time.Hour)},
	}
	r, err := newTestFetcher(src, Config{IncludeComments: true}).Fetch(context.Background(), []string{"c"}, 20, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, r.Sources[0].Posts)
	assert.Equal(t, 10, r.Sources[0].Comments)
}

func TestFetchEmptyInput(t *testing.T) {
	r, err := newTestFetcher(&fakeSource{}, Config{}).Fetch(context.Background(), nil, 100, nil)
	require.NoError(t, err)
	assert.Empty(t, r.Items)
}
