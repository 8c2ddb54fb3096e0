package collect

import "time"

// Tier buckets a source by posting velocity.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// TierFor returns high above 20 posts/day, medium from 5, low below.
func TierFor(velocity float64) Tier {
	switch {
	case velocity > 20:
		return TierHigh
	case velocity >= 5:
		return TierMedium
	}
	return TierLow
}

// Window is an age range, From newer than To, relative to now.
type Window struct {
	From time.Duration
	To   time.Duration
}

// PlanFor returns the windows sampled for a tier. Low-velocity sources are
// fetched as one window spanning the whole lookback.
func PlanFor(tier Tier, lookback time.Duration) []Window {
	switch tier {
	case TierHigh:
		return []Window{{0, 30 * day}, {30 * day, 180 * day}, {180 * day, 365 * day}}
	case TierMedium:
		return []Window{{0, 90 * day}, {90 * day, 365 * day}}
	}
	return []Window{{0, lookback}}
}

// Clip converts windows to absolute ranges ending at now and trims them to bounds.
// Windows falling entirely outside bounds are dropped.
func Clip(plan []Window, now time.Time, bounds TimeRange) []TimeRange {
	var out []TimeRange
	for _, w := range plan {
		r := TimeRange{Start: now.Add(-w.To), End: now.Add(-w.From)}
		if !bounds.Start.IsZero() && r.Start.Before(bounds.Start) {
			r.Start = bounds.Start
		}
		if !bounds.End.IsZero() && r.End.After(bounds.End) {
			r.End = bounds.End
		}
		if r.End.After(r.Start) {
			out = append(out, r)
		}
	}
	return out
}
