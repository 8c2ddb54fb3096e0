// Package similarity scores candidates against embeddings of the hypothesis and
// buckets them into tiers.
package similarity

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/embedding"
	"github.com/TobiSchelling/painscout/internal/focus"
	"github.com/TobiSchelling/painscout/internal/hypothesis"
	"github.com/TobiSchelling/painscout/internal/llm"
	"github.com/TobiSchelling/painscout/internal/metrics"
)

// Default thresholds.
const (
	HighThreshold          = 0.50
	MediumThreshold        = 0.35
	BoostedMediumThreshold = 0.30
	BoostBonus             = 0.05
	MinSignals             = 10
)

// Level is the similarity tier of a candidate.
type Level string

const (
	High   Level = "high"
	Medium Level = "medium"
	Low    Level = "low"
)

// ClassifyScore buckets a score using the default thresholds.
func ClassifyScore(s float64, boosted bool) Level {
	return DefaultConfig.classify(s, boosted)
}

// Config holds the tier thresholds and the coverage boost settings.
type Config struct {
	High          float64
	Medium        float64
	BoostedMedium float64
	BoostBonus    float64
	MinSignals    int
	CoverageBoost bool // rescore with boost keywords when High+Medium < MinSignals
}

// DefaultConfig has coverage boost off.
var DefaultConfig = Config{
	High:          HighThreshold,
	Medium:        MediumThreshold,
	BoostedMedium: BoostedMediumThreshold,
	BoostBonus:    BoostBonus,
	MinSignals:    MinSignals,
}

func (c Config) classify(s float64, boosted bool) Level {
	medium := c.Medium
	if boosted {
		medium = c.BoostedMedium
	}
	switch {
	case s >= c.High:
		return High
	case s >= medium:
		return Medium
	}
	return Low
}

// Scored is a candidate with its similarity.
type Scored struct {
	Item     content.Item
	Raw      float64 // max cosine across facets
	Score    float64 // Raw plus any boost bonus
	Level    Level
	BoostHit bool
}

// Result buckets candidates by level, each in input order.
type Result struct {
	High          []Scored
	Medium        []Scored
	Low           []Scored
	Boosted       bool
	BoostKeywords []string
	Decisions     []content.Decision
}

// Accepted returns the high and medium candidates.
func (r *Result) Accepted() []Scored {
	return append(append([]Scored{}, r.High...), r.Medium...)
}

const boostPrompt = `Thin evidence was found for this problem hypothesis:

%s

List 10-15 short lowercase words or phrases that someone suffering from this problem would likely write in a forum post (symptoms, slang, workarounds, complaints). Avoid generic words.

Respond with ONLY this JSON:
{"keywords": ["...", "..."]}`

// Filter scores candidates by embedding similarity.
type Filter struct {
	emb      *embedding.Service
	provider llm.Provider
	cfg      Config
}

// NewFilter creates a filter. provider is only used for boost keywords and may
// be nil. Zero thresholds take defaults.
func NewFilter(emb *embedding.Service, provider llm.Provider, cfg Config) *Filter {
	if cfg.High <= 0 {
		cfg.High = DefaultConfig.High
	}
	if cfg.Medium <= 0 {
		cfg.Medium = DefaultConfig.Medium
	}
	if cfg.BoostedMedium <= 0 {
		cfg.BoostedMedium = DefaultConfig.BoostedMedium
	}
	if cfg.BoostBonus <= 0 {
		cfg.BoostBonus = DefaultConfig.BoostBonus
	}
	if cfg.MinSignals <= 0 {
		cfg.MinSignals = DefaultConfig.MinSignals
	}
	return &Filter{emb: emb, provider: provider, cfg: cfg}
}

// Facets returns the reference texts a candidate is compared against: the
// statement, the dense problem text, and pain, complaint and solution-seeking
// phrasings of the statement.
func Facets(statement, problemText string) []string {
	statement = strings.TrimSpace(statement)
	candidates := []string{statement, strings.TrimSpace(problemText)}
	if statement != "" {
		first, size := utf8.DecodeRuneInString(statement)
		lower := string(unicode.ToLower(first)) + statement[size:]
		candidates = append(candidates,
			"I'm really struggling with this: "+lower,
			"So frustrated and fed up. "+statement,
			"Does anyone have advice or a solution? "+statement,
		)
	}

	seen := make(map[string]bool)
	var out []string
	for _, c := range candidates {
		key := hypothesis.Normalize(c)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// Score embeds the facets and candidates and tiers each candidate by its best
// facet similarity. If coverage boost is enabled and too few candidates clear
// MEDIUM, it rescores with boost keywords and the lower boosted floor.
func (f *Filter) Score(ctx context.Context, statement string, fc focus.Focus, candidates []content.Item) (*Result, error) {
	result := &Result{}
	if len(candidates) == 0 {
		return result, nil
	}

	facets := Facets(statement, fc.ProblemText)
	if len(facets) == 0 {
		return nil, fmt.Errorf("no hypothesis text to compare against")
	}
	refs, err := f.emb.Embed(ctx, facets)
	if err != nil {
		return nil, fmt.Errorf("embedding hypothesis: %w", err)
	}

	texts := make([]string, len(candidates))
	for i, it := range candidates {
		texts[i] = it.Text()
	}
	vecs, err := f.emb.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding candidates: %w", err)
	}

	scored := make([]Scored, len(candidates))
	accepted := 0
	for i, it := range candidates {
		best := 0.0
		for _, r := range refs {
			best = max(best, embedding.Cosine(r, vecs[i]))
		}
		scored[i] = Scored{Item: it, Raw: best, Score: best, Level: f.cfg.classify(best, false)}
		if scored[i].Level != Low {
			accepted++
		}
	}

	if f.cfg.CoverageBoost && accepted < f.cfg.MinSignals {
		result.Boosted = true
		result.BoostKeywords = f.boostKeywords(ctx, statement, fc)
		log.Printf("Similarity: only %d signals, boosting with %d keywords", accepted, len(result.BoostKeywords))
		for i := range scored {
			s := &scored[i]
			if containsAny(s.Item.Text(), result.BoostKeywords) {
				s.BoostHit = true
				s.Score = s.Raw + f.cfg.BoostBonus
			}
			s.Level = f.cfg.classify(s.Score, true)
		}
	}

	for _, s := range scored {
		d := content.Decision{
			ItemID:  s.Item.ID,
			Stage:   content.StageSimilarity,
			Verdict: content.Pass,
			Reason:  fmt.Sprintf("%s %.3f", s.Level, s.Score),
		}
		switch s.Level {
		case High:
			result.High = append(result.High, s)
		case Medium:
			result.Medium = append(result.Medium, s)
		default:
			d.Verdict = content.Reject
			result.Low = append(result.Low, s)
		}
		if s.BoostHit {
			d.Reason += " (boost keyword)"
		}
		metrics.StageDecisions.WithLabelValues(string(d.Stage), string(d.Verdict)).Inc()
		result.Decisions = append(result.Decisions, d)
	}

	log.Printf("Similarity: %d high, %d medium, %d low", len(result.High), len(result.Medium), len(result.Low))
	return result, nil
}

func (f *Filter) boostKeywords(ctx context.Context, statement string, fc focus.Focus) []string {
	if f.provider != nil {
		resp, err := f.provider.Generate(ctx, fmt.Sprintf(boostPrompt, statement), 400)
		if err == nil {
			var parsed struct {
				Keywords []string `json:"keywords"`
			}
			if err = llm.ParseJSONInto(resp, &parsed); err == nil {
				if kws := normalizeAll(parsed.Keywords); len(kws) > 0 {
					return kws
				}
				err = fmt.Errorf("no keywords in response")
			}
		}
		log.Printf("Boost keyword generation failed, using focus keywords: %v", err)
	}
	return normalizeAll(fc.Keywords)
}

func normalizeAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = hypothesis.Normalize(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
