package triage

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/llm"
)

// Default batch sizes.
const (
	DomainBatchSize  = 25
	ProblemBatchSize = 15
	excerptLength    = 400
)

const domainPrompt = `You are screening forum posts for a research project about %s.

For each numbered post, answer Y if it is about %s (even loosely or in passing), or N if it is clearly about something else.
%s
Posts:
%s
Respond with ONLY one letter per post, in order, separated by spaces (for example: Y N Y).`

// DomainResult is the outcome of the domain gate.
type DomainResult struct {
	Passed    []content.Item
	Filtered  []content.Item
	Decisions []content.Decision
	Batches   []BatchResult
}

// DomainGate is a cheap, high-recall relevance check against the topic domain.
type DomainGate struct {
	runner
}

// NewDomainGate creates a gate. A zero BatchSize uses DomainBatchSize.
func NewDomainGate(provider llm.Provider, cfg Config) *DomainGate {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DomainBatchSize
	}
	return &DomainGate{runner{provider: provider, stage: content.StageDomain, cfg: cfg}}
}

// Classify keeps items the LLM places in domain. An empty domain skips the gate.
func (g *DomainGate) Classify(ctx context.Context, items []content.Item, domain string, antiDomains []string) (*DomainResult, error) {
	result := &DomainResult{}
	if len(items) == 0 {
		return result, nil
	}

	domain = strings.TrimSpace(domain)
	if domain == "" {
		log.Println("No domain derived, skipping domain gate")
		for _, it := range items {
			result.Passed = append(result.Passed, it)
			result.Decisions = append(result.Decisions, record(content.Decision{
				ItemID: it.ID, Stage: content.StageDomain, Verdict: content.Pass, Reason: "no domain",
			}))
		}
		return result, nil
	}

	anti := ""
	if len(antiDomains) > 0 {
		anti = fmt.Sprintf("Posts mainly about %s count as N.\n", strings.Join(antiDomains, ", "))
	}

	batches, err := g.run(ctx, len(items), "YN", func(start, end int) string {
		return fmt.Sprintf(domainPrompt, domain, domain, anti, numbered(items[start:end]))
	})
	if err != nil {
		return nil, err
	}
	result.Batches = batches

	for i, it := range items {
		letter, batch := letterAt(batches, i)
		d := content.Decision{ItemID: it.ID, Stage: content.StageDomain, Verdict: content.Pass}
		switch {
		case letter == 'N':
			d.Verdict = content.Reject
			d.Reason = "out of domain"
			if batch != nil && batch.Err != nil {
				d.Reason = "batch rejected: " + batch.Err.Error()
			}
			result.Filtered = append(result.Filtered, it)
		case batch != nil && batch.FailedOpen:
			d.Reason = "fail-open: " + batch.Err.Error()
			result.Passed = append(result.Passed, it)
		case letter == unknown:
			d.Reason = "unanswered"
			result.Passed = append(result.Passed, it)
		default:
			result.Passed = append(result.Passed, it)
		}
		result.Decisions = append(result.Decisions, record(d))
	}

	log.Printf("Domain gate: %d/%d in %q", len(result.Passed), len(items), domain)
	return result, nil
}

func numbered(items []content.Item) string {
	var b strings.Builder
	for i, it := range items {
		title := strings.TrimSpace(it.Title)
		body := strings.Join(strings.Fields(it.Body), " ")
		if len(body) > excerptLength {
			body = content.Item{Body: body}.Excerpt(excerptLength)
		}
		switch {
		case title != "" && body != "" && body != title:
			fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, title, body)
		case title != "":
			fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		default:
			fmt.Fprintf(&b, "%d. %s\n", i+1, body)
		}
	}
	return b.String()
}
