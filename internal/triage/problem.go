package triage

import (
	"context"
	"fmt"
	"log"

	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/hypothesis"
	"github.com/TobiSchelling/painscout/internal/llm"
)

const standardPrompt = `You are checking whether forum posts show someone experiencing a specific problem.

Problem: %s

For each numbered post answer Y if the author (or someone they describe) is experiencing this problem, or N if not.
Judge the problem, not the person: ignore age, job or other demographics unless the post clearly contradicts the problem.
%s
Posts:
%s
Respond with ONLY one letter per post, in order, separated by spaces (for example: Y N Y).`

const contextPrompt = `You are checking whether forum posts show someone experiencing a problem in a specific setting.

Problem: %s
Setting: %s

For each numbered post answer:
C (core) if both the problem and the setting are present
R (related) if only one of them is present: the problem in another or unstated setting, or this setting with a different problem
N (none) if neither the problem nor the setting is present
%s
Posts:
%s
Respond with ONLY one letter per post, in order, separated by spaces (for example: C N R).`

const transitionPrompt = `You are checking whether forum posts show people trying to make a specific change.

Who: %s
Change they want: %s

For each numbered post answer:
C (core) if the author is in this starting situation and pursuing or struggling with this change
R (related) if the author has already completed this change and describes how it went
N (none) if the post is not about this change
%s
Posts:
%s
Respond with ONLY one letter per post, in order, separated by spaces (for example: C N R).`

// PromptBuilder renders a batch prompt for a classification mode.
type PromptBuilder func(h hypothesis.Hypothesis, p hypothesis.Profile, posts string) string

// Prompts holds the builder for each mode. Tiered modes answer C/R/N.
var Prompts = map[hypothesis.Mode]PromptBuilder{
	hypothesis.ModeStandard: func(h hypothesis.Hypothesis, _ hypothesis.Profile, posts string) string {
		return fmt.Sprintf(standardPrompt, h.Statement(), exclusions(h), posts)
	},
	hypothesis.ModeContext: func(h hypothesis.Hypothesis, p hypothesis.Profile, posts string) string {
		return fmt.Sprintf(contextPrompt, p.Context.Problem, p.Context.Setting, exclusions(h), posts)
	},
	hypothesis.ModeTransition: func(h hypothesis.Hypothesis, p hypothesis.Profile, posts string) string {
		return fmt.Sprintf(transitionPrompt, p.Transition.Origin, p.Transition.Target, exclusions(h), posts)
	},
}

func exclusions(h hypothesis.Hypothesis) string {
	if len(h.ExcludeTopics) == 0 {
		return ""
	}
	return fmt.Sprintf("Posts mainly about %v count as N.\n", h.ExcludeTopics)
}

// ProblemResult is the outcome of the problem-match classifier. Tiers is
// aligned with Items.
type ProblemResult struct {
	Mode      hypothesis.Mode
	Items     []content.Item
	Tiers     []content.Tier
	Core      []content.Item
	Related   []content.Item
	None      []content.Item
	Decisions []content.Decision
	Batches   []BatchResult
}

// Signals returns the core and related items in input order, weighted by tier
// and scaled by multiplier.
func (r *ProblemResult) Signals(recovered bool, multiplier float64) []content.Signal {
	var out []content.Signal
	for i, it := range r.Items {
		tier := r.Tiers[i]
		if tier == content.TierNone {
			continue
		}
		out = append(out, content.Signal{
			Item:      it,
			Tier:      tier,
			Recovered: recovered,
			Weight:    tier.Weight() * multiplier,
		})
	}
	return out
}

// ProblemClassifier assigns each item a tier against the hypothesis.
type ProblemClassifier struct {
	runner
}

// NewProblemClassifier creates a classifier. A zero BatchSize uses ProblemBatchSize.
func NewProblemClassifier(provider llm.Provider, cfg Config) *ProblemClassifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = ProblemBatchSize
	}
	return &ProblemClassifier{runner{provider: provider, stage: content.StageProblem, cfg: cfg}}
}

// Classify tiers items against h using the mode the profile selects. Batches the
// stage could not classify are tiered related when failing open.
func (c *ProblemClassifier) Classify(ctx context.Context, items []content.Item, h hypothesis.Hypothesis, profile hypothesis.Profile) (*ProblemResult, error) {
	mode := profile.Mode()
	result := &ProblemResult{Mode: mode, Items: items}
	if len(items) == 0 {
		return result, nil
	}

	build, ok := Prompts[mode]
	if !ok {
		mode = hypothesis.ModeStandard
		result.Mode = mode
		build = Prompts[mode]
	}
	allowed := "CRN"
	if mode == hypothesis.ModeStandard {
		allowed = "YN"
	}

	batches, err := c.run(ctx, len(items), allowed, func(start, end int) string {
		return build(h, profile, numbered(items[start:end]))
	})
	if err != nil {
		return nil, err
	}
	result.Batches = batches

	result.Tiers = make([]content.Tier, len(items))
	for i, it := range items {
		letter, batch := letterAt(batches, i)
		tier := tierFor(letter)
		d := content.Decision{ItemID: it.ID, Stage: content.StageProblem, Tier: tier, Verdict: content.Pass}
		switch {
		case batch != nil && batch.FailedOpen:
			d.Reason = "fail-open: " + batch.Err.Error()
		case batch != nil && batch.Err != nil:
			d.Reason = "batch rejected: " + batch.Err.Error()
		case letter == unknown:
			d.Reason = "unanswered"
		default:
			d.Reason = mode.String()
		}

		result.Tiers[i] = tier
		switch tier {
		case content.TierCore:
			result.Core = append(result.Core, it)
		case content.TierRelated:
			result.Related = append(result.Related, it)
		default:
			d.Verdict = content.Reject
			result.None = append(result.None, it)
		}
		result.Decisions = append(result.Decisions, record(d))
	}

	log.Printf("Problem match (%s): %d core, %d related, %d none",
		mode, len(result.Core), len(result.Related), len(result.None))
	return result, nil
}

func tierFor(letter byte) content.Tier {
	switch letter {
	case 'Y', 'C':
		return content.TierCore
	case 'N':
		return content.TierNone
	}
	return content.TierRelated
}
