package content

// Stage names a filtering step that emits decisions.
type Stage string

const (
	StageQuality    Stage = "quality"
	StageKeyword    Stage = "keyword"
	StageDomain     Stage = "domain"
	StageProblem    Stage = "problem"
	StageSimilarity Stage = "similarity"
)

// Verdict is the binary outcome of a stage for one item.
type Verdict string

const (
	Pass   Verdict = "pass"
	Reject Verdict = "reject"
)

// Tier is the confidence level assigned to a match.
type Tier string

const (
	TierCore    Tier = "core"
	TierRelated Tier = "related"
	TierNone    Tier = "none"
)

// Weight returns the downstream weighting for a tier.
func (t Tier) Weight() float64 {
	switch t {
	case TierCore:
		return 1.0
	case TierRelated:
		return 0.6
	}
	return 0
}

// Decision is one audit record for one item at one stage.
type Decision struct {
	ItemID  string
	Stage   Stage
	Verdict Verdict
	Tier    Tier
	Reason  string
}

// Ledger accumulates decisions across stages. Records are never changed once appended.
type Ledger struct {
	records []Decision
}

// Append adds decisions to the end of the ledger.
func (l *Ledger) Append(ds ...Decision) {
	l.records = append(l.records, ds...)
}

// Records returns a copy of all decisions in append order.
func (l *Ledger) Records() []Decision {
	out := make([]Decision, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of decisions recorded.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Count returns how many decisions at stage have the given verdict.
func (l *Ledger) Count(stage Stage, verdict Verdict) int {
	n := 0
	for _, d := range l.records {
		if d.Stage == stage && d.Verdict == verdict {
			n++
		}
	}
	return n
}

// Signal is an item that survived filtering and counts as evidence.
type Signal struct {
	Item       Item
	Tier       Tier
	Recovered  bool // accepted via the title-only path
	Weight     float64
	Similarity float64
}
