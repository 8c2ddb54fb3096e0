// Package collect pulls raw posts from the archive across velocity-sized time windows.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/painscout/internal/archive"
	"github.com/TobiSchelling/painscout/internal/content"
)

// ErrAllSourcesFailed is returned when not a single source could be fetched.
var ErrAllSourcesFailed = errors.New("all sources failed")

const day = 24 * time.Hour

// Config tunes the fetcher.
type Config struct {
	SampleSize      int           // posts used to estimate velocity
	Lookback        time.Duration // default time range when none is given
	IncludeComments bool
	CommentShare    float64 // fraction of each window share spent on comments
}

// DefaultConfig samples 100 posts over a one-year lookback, posts only.
var DefaultConfig = Config{SampleSize: 100, Lookback: 365 * day, CommentShare: 0.5}

// TimeRange bounds a fetch. A zero Start or End is unbounded on that side.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// SourceStats describes how one source was fetched.
type SourceStats struct {
	Container     string
	Velocity      float64 // posts per day
	Tier          Tier
	Windows       int
	Posts         int
	Comments      int
	FailedWindows int
	Err           error
}

// Failed reports whether every window of the source failed without yielding anything.
func (s SourceStats) Failed() bool {
	return s.Windows > 0 && s.FailedWindows == s.Windows && s.Posts+s.Comments == 0
}

// Result holds the results of a fetch.
type Result struct {
	Items      []content.Item
	Sources    []SourceStats
	Duplicates int
}

// Fetcher implements the adaptive multi-window fetch.
type Fetcher struct {
	src archive.Source
	cfg Config
	now func() time.Time
}

// NewFetcher creates a fetcher over src. Zero config fields take defaults.
func NewFetcher(src archive.Source, cfg Config) *Fetcher {
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultConfig.SampleSize
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultConfig.Lookback
	}
	if cfg.CommentShare <= 0 || cfg.CommentShare >= 1 {
		cfg.CommentShare = DefaultConfig.CommentShare
	}
	return &Fetcher{src: src, cfg: cfg, now: time.Now}
}

// Fetch gathers up to roughly totalTarget items from sources, deduplicated by ID.
// Failed sources are logged and skipped; only total failure is an error.
func (f *Fetcher) Fetch(ctx context.Context, sources []string, totalTarget int, tr *TimeRange) (*Result, error) {
	r := &Result{}
	if len(sources) == 0 || totalTarget <= 0 {
		return r, nil
	}

	bounds := f.resolveRange(tr)
	share := ceilDiv(totalTarget, len(sources))
	seen := make(map[string]bool)

	failed := 0
	for _, container := range sources {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		stats := f.fetchSource(ctx, container, share, bounds, seen, r)
		if stats.Failed() {
			failed++
			log.Printf("Source r/%s failed, skipping: %v", container, stats.Err)
		} else {
			log.Printf("Fetched r/%s: %.1f posts/day (%s), %d windows, %d posts, %d comments",
				container, stats.Velocity, stats.Tier, stats.Windows, stats.Posts, stats.Comments)
		}
		r.Sources = append(r.Sources, stats)
	}

	if failed == len(sources) {
		return r, fmt.Errorf("fetching %d sources: %w", len(sources), ErrAllSourcesFailed)
	}
	log.Printf("Fetch complete: %d items from %d sources (%d failed), %d duplicates",
		len(r.Items), len(sources), failed, r.Duplicates)
	return r, nil
}

func (f *Fetcher) resolveRange(tr *TimeRange) TimeRange {
	now := f.now().UTC()
	out := TimeRange{Start: now.Add(-f.cfg.Lookback), End: now}
	if tr == nil {
		return out
	}
	if !tr.End.IsZero() && tr.End.Before(now) {
		out.End = tr.End
	}
	if !tr.Start.IsZero() {
		out.Start = tr.Start
	}
	return out
}

func (f *Fetcher) fetchSource(ctx context.Context, container string, share int, bounds TimeRange, seen map[string]bool, r *Result) SourceStats {
	stats := SourceStats{Container: container}

	velocity, err := f.estimateVelocity(ctx, container)
	if err != nil {
		log.Printf("Velocity estimate for r/%s failed, assuming low: %v", container, err)
		stats.Err = err
	}
	stats.Velocity = velocity
	stats.Tier = TierFor(velocity)

	windows := Clip(PlanFor(stats.Tier, f.cfg.Lookback), f.now().UTC(), bounds)
	stats.Windows = len(windows)
	if len(windows) == 0 {
		return stats
	}

	windowShare := ceilDiv(share, len(windows))
	postShare, commentShare := windowShare, 0
	if f.cfg.IncludeComments {
		commentShare = int(float64(windowShare) * f.cfg.CommentShare)
		postShare = windowShare - commentShare
	}

	for _, w := range windows {
		n, err := f.paginate(ctx, container, w, postShare, content.KindPost, seen, r)
		stats.Posts += n
		if err == nil && commentShare > 0 {
			var c int
			c, err = f.paginate(ctx, container, w, commentShare, content.KindComment, seen, r)
			stats.Comments += c
		}
		if err != nil {
			stats.FailedWindows++
			stats.Err = err
			log.Printf("Window %s..%s of r/%s failed: %v", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly), container, err)
		}
	}
	return stats
}

// paginate walks one window newest first with a moving Before cursor until want new items are found
// or a page brings nothing new.
func (f *Fetcher) paginate(ctx context.Context, container string, w TimeRange, want int, kind content.Kind, seen map[string]bool, r *Result) (int, error) {
	search := f.src.SearchPosts
	if kind == content.KindComment {
		search = f.src.SearchComments
	}

	added := 0
	cursor := w.End
	overlap := 0
	mine := make(map[string]bool)
	for added < want {
		limit := min(want-added+overlap, archive.MaxPageSize)
		page, err := search(ctx, archive.Query{Container: container, After: w.Start, Before: cursor, Limit: limit})
		if err != nil {
			return added, err
		}
		fresh := 0
		for _, it := range page {
			if added == want {
				break
			}
			if mine[it.ID] {
				continue
			}
			if it.Container == "" {
				it.Container = container
			}
			if seen[it.ID] {
				r.Duplicates++
				continue
			}
			seen[it.ID] = true
			mine[it.ID] = true
			r.Items = append(r.Items, it)
			added++
			fresh++
		}
		if len(page) < limit || fresh == 0 {
			break
		}
		// Before is exclusive; step one second past the oldest post so its
		// same-second neighbours beyond the page limit are not skipped.
		oldest := page[len(page)-1].CreatedAt
		if oldest.IsZero() {
			break
		}
		cursor = oldest.Add(time.Second)
		overlap = 0
		for _, it := range page {
			if it.CreatedAt.Before(cursor) {
				overlap++
			}
		}
	}
	return added, nil
}

func (f *Fetcher) estimateVelocity(ctx context.Context, container string) (float64, error) {
	sample, err := f.src.SearchPosts(ctx, archive.Query{Container: container, Limit: f.cfg.SampleSize})
	if err != nil {
		return 0, err
	}
	return Velocity(sample), nil
}

// Velocity estimates posts per day from the timestamp spread of a sample.
func Velocity(sample []content.Item) float64 {
	var newest, oldest time.Time
	n := 0
	for _, it := range sample {
		if it.CreatedAt.IsZero() {
			continue
		}
		n++
		if newest.IsZero() || it.CreatedAt.After(newest) {
			newest = it.CreatedAt
		}
		if oldest.IsZero() || it.CreatedAt.Before(oldest) {
			oldest = it.CreatedAt
		}
	}
	if n < 2 {
		return 0
	}
	span := newest.Sub(oldest).Hours() / 24
	if span < 1.0/24 {
		span = 1.0 / 24
	}
	return float64(n-1) / span
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
