package triage

import (
	"context"
	"log"

	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/hypothesis"
	"github.com/TobiSchelling/painscout/internal/quality"
)

// RecoveryWeight scales the tier weight of signals found from titles alone.
const RecoveryWeight = 0.5

// Recovery is the outcome of classifying removed-body posts by title.
type Recovery struct {
	Attempted int
	Signals   []content.Signal
	Decisions []content.Decision
}

// Recover runs title-only copies of recoverable items through the domain gate
// and the classifier. Accepted items are marked recovered and down-weighted.
func Recover(ctx context.Context, gate *DomainGate, cls *ProblemClassifier, items []content.Item,
	h hypothesis.Hypothesis, profile hypothesis.Profile, domain string, antiDomains []string) (*Recovery, error) {
	rec := &Recovery{Attempted: len(items)}
	if len(items) == 0 {
		return rec, nil
	}

	titled := make([]content.Item, len(items))
	for i, it := range items {
		titled[i] = it.TitleOnly()
	}

	dr, err := gate.Classify(ctx, titled, domain, antiDomains)
	if err != nil {
		return nil, err
	}
	rec.Decisions = append(rec.Decisions, titleOnly(dr.Decisions)...)

	pr, err := cls.Classify(ctx, dr.Passed, h, profile)
	if err != nil {
		return nil, err
	}
	rec.Decisions = append(rec.Decisions, titleOnly(pr.Decisions)...)
	rec.Signals = pr.Signals(true, RecoveryWeight)

	// Signals carry the original post, minus its placeholder body.
	originals := make(map[string]content.Item, len(items))
	for _, it := range items {
		if quality.IsPlaceholder(it.Body) {
			it.Body = ""
		}
		originals[it.ID] = it
	}
	for i := range rec.Signals {
		if it, ok := originals[rec.Signals[i].Item.ID]; ok {
			rec.Signals[i].Item = it
		}
	}

	log.Printf("Title-only recovery: %d/%d accepted", len(rec.Signals), len(items))
	return rec, nil
}

func titleOnly(ds []content.Decision) []content.Decision {
	for i := range ds {
		if ds[i].Reason == "" {
			ds[i].Reason = "title-only"
		} else {
			ds[i].Reason = "title-only: " + ds[i].Reason
		}
	}
	return ds
}
