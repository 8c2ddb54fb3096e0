package cluster

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/llm"
)

const labelPrompt = `These forum posts were grouped together as evidence for the problem: %s

Posts:
%s

Name the shared theme as someone with the problem would describe it, in 3-7 words.

Respond with ONLY this JSON:
{"label": "..."}`

// Labeler names clusters with an LLM, falling back to frequent title words.
type Labeler struct {
	provider llm.Provider
}

// NewLabeler creates a labeler. provider may be nil.
func NewLabeler(provider llm.Provider) *Labeler {
	return &Labeler{provider: provider}
}

// Label replaces the fallback label of each cluster where the LLM answers.
func (l *Labeler) Label(ctx context.Context, statement string, clusters []*Cluster) {
	if l.provider == nil {
		return
	}
	for _, c := range clusters {
		label, err := l.label(ctx, statement, c)
		if err != nil {
			log.Printf("Labelling cluster %s failed, keeping %q: %v", c.ID, c.Label, err)
			continue
		}
		c.Label = label
	}
}

func (l *Labeler) label(ctx context.Context, statement string, c *Cluster) (string, error) {
	var posts strings.Builder
	for i, e := range c.Excerpts {
		fmt.Fprintf(&posts, "[%d] %s\n", i+1, e)
	}

	resp, err := l.provider.Generate(ctx, fmt.Sprintf(labelPrompt, statement, posts.String()), 100)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Label string `json:"label"`
	}
	if err := llm.ParseJSONInto(resp, &parsed); err != nil {
		return "", err
	}
	label := strings.Trim(strings.TrimSpace(parsed.Label), `."`)
	if label == "" {
		return "", fmt.Errorf("empty label")
	}
	return label, nil
}

var labelStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "shall": true,
	"to": true, "of": true, "in": true, "for": true, "on": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "and": true, "but": true, "or": true, "not": true,
	"so": true, "all": true, "any": true, "more": true, "most": true, "other": true,
	"some": true, "such": true, "no": true, "only": true, "than": true, "too": true,
	"very": true, "just": true, "how": true, "what": true, "which": true, "who": true,
	"this": true, "that": true, "these": true, "those": true, "it": true, "its": true,
	"about": true, "up": true, "out": true, "also": true, "like": true, "get": true,
	"you": true, "your": true, "my": true, "me": true, "i'm": true, "im": true,
	"anyone": true, "else": true, "help": true, "why": true, "when": true,
}

// generateLabel joins the three most frequent title words, ties broken by first
// appearance. Falls back to the first title.
func generateLabel(members []content.Signal) string {
	counts := make(map[string]int)
	var order []string
	for _, s := range members {
		text := s.Item.Title
		if text == "" {
			text = s.Item.Excerpt(120)
		}
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, ".,!?:;\"'()-[]*")
			if len(word) <= 2 || labelStopWords[word] {
				continue
			}
			if counts[word] == 0 {
				order = append(order, word)
			}
			counts[word]++
		}
	}

	var top []string
	for i := 0; i < 3; i++ {
		best := ""
		for _, w := range order {
			if counts[w] > counts[best] {
				best = w
			}
		}
		if best == "" {
			break
		}
		top = append(top, capitalize(best))
		delete(counts, best)
	}
	if len(top) > 0 {
		return strings.Join(top, " ")
	}

	return members[0].Item.Excerpt(50)
}

func capitalize(w string) string {
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
