// Package focus derives the keyword set and dense problem description for a hypothesis.
package focus

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/painscout/internal/hypothesis"
	"github.com/TobiSchelling/painscout/internal/llm"
)

// MaxKeywords caps the keyword set handed to the keyword gate.
const MaxKeywords = 25

// Focus is the derived, cacheable view of a hypothesis.
type Focus struct {
	Keywords    []string `json:"keywords"`
	ProblemText string   `json:"problem_text"`
	Domain      string   `json:"domain"`
	AntiDomains []string `json:"anti_domains"`
}

const focusPrompt = `You are preparing a search over forum posts to test a problem hypothesis.

Hypothesis: %s
%s
Return a JSON object with:
- "keywords": 10-20 lowercase words or short phrases people would actually write when they have this problem (include slang and symptoms, not just the formal name)
- "problem_text": one dense paragraph describing the problem as a sufferer would, in first person
- "domain": a one- or two-word label for the topic area (e.g. "skincare", "freelancing")
- "anti_domains": 3-5 topic areas that share vocabulary with this domain but are irrelevant

Respond with ONLY the JSON object.`

// Extractor produces a Focus per hypothesis, caching results by hypothesis key.
type Extractor struct {
	provider llm.Provider
	cache    Cache
}

// NewExtractor creates an extractor. provider and cache may be nil.
func NewExtractor(provider llm.Provider, cache Cache) *Extractor {
	return &Extractor{provider: provider, cache: cache}
}

// Focus returns the cached focus for h, asking the LLM on a miss and falling back
// to a keyword heuristic when the LLM is unavailable or answers badly.
func (e *Extractor) Focus(ctx context.Context, h hypothesis.Hypothesis) Focus {
	key := h.Key()
	if e.cache != nil {
		if f, ok := e.cache.Get(key); ok {
			return f
		}
	}

	if e.provider != nil {
		f, err := e.extract(ctx, h)
		if err == nil {
			if e.cache != nil {
				e.cache.Put(key, f)
			}
			log.Printf("Problem focus: %d keywords, domain %q", len(f.Keywords), f.Domain)
			return f
		}
		log.Printf("Focus extraction failed, using heuristic: %v", err)
	}

	return Heuristic(h)
}

func (e *Extractor) extract(ctx context.Context, h hypothesis.Hypothesis) (Focus, error) {
	var details strings.Builder
	if h.Audience != "" {
		fmt.Fprintf(&details, "Audience: %s\n", h.Audience)
	}
	if h.Problem != "" {
		fmt.Fprintf(&details, "Problem: %s\n", h.Problem)
	}
	if len(h.ProblemLanguage) > 0 {
		fmt.Fprintf(&details, "How they describe it: %s\n", strings.Join(h.ProblemLanguage, "; "))
	}
	if len(h.ExcludeTopics) > 0 {
		fmt.Fprintf(&details, "Exclude: %s\n", strings.Join(h.ExcludeTopics, ", "))
	}

	resp, err := e.provider.Generate(ctx, fmt.Sprintf(focusPrompt, h.Statement(), details.String()), 800)
	if err != nil {
		return Focus{}, err
	}

	var f Focus
	if err := llm.ParseJSONInto(resp, &f); err != nil {
		return Focus{}, err
	}
	f = merge(f, h)
	if len(f.Keywords) == 0 || f.ProblemText == "" {
		return Focus{}, fmt.Errorf("focus response missing keywords or problem text")
	}
	return f, nil
}

// merge folds the structured hypothesis fields into f and normalizes it.
func merge(f Focus, h hypothesis.Hypothesis) Focus {
	f.Keywords = dedupe(append(append([]string{}, h.ProblemLanguage...), f.Keywords...), MaxKeywords)
	f.AntiDomains = dedupe(append(append([]string{}, h.ExcludeTopics...), f.AntiDomains...), 0)
	f.ProblemText = strings.TrimSpace(f.ProblemText)
	f.Domain = hypothesis.Normalize(f.Domain)
	return f
}

func dedupe(in []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		s = hypothesis.Normalize(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
