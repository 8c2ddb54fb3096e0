// Package quality drops unusable items before any paid classification runs.
package quality

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TobiSchelling/painscout/internal/content"
)

// Config holds the gate thresholds.
type Config struct {
	MinLength        int     // combined title+body runes
	MinTitleLength   int     // runes for a removed-body post to be recoverable
	MaxForeignRatio  float64 // non-Latin letters over all letters
	MinLettersForLID int     // below this the language check is skipped
}

// DefaultConfig is the production tuning.
var DefaultConfig = Config{MinLength: 25, MinTitleLength: 30, MaxForeignRatio: 0.30, MinLettersForLID: 10}

// Rejection reasons recorded in decisions.
const (
	ReasonRemoved     = "body removed"
	ReasonRecoverable = "body removed, title recoverable"
	ReasonTooShort    = "too short"
	ReasonLanguage    = "non-target language"
	ReasonSpam        = "spam pattern"
)

// Result partitions the input. Every input item lands in exactly one bucket.
type Result struct {
	Passed      []content.Item
	Filtered    []content.Item
	Recoverable []content.Item
	Decisions   []content.Decision
}

var placeholderPrefixes = []string{"[removed", "[deleted", "[unavailable", "[ removed", "[ deleted"}

var stockTitles = map[string]bool{
	"can someone please help me with this":    true,
	"i need some advice please help me":       true,
	"looking for some advice on my situation": true,
	"just wanted to share my experience here": true,
	"what do you all think about this one":    true,
	"not sure if this is the right place":     true,
	"sorry if this is the wrong subreddit":    true,
	"long post incoming please bear with me":  true,
}

var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(buy now|order now|click (here|the link)|limited[- ]time offer)\b`),
	regexp.MustCompile(`(?i)\b(use|apply) (my |the )?(promo|discount|coupon|referral) code\b`),
	regexp.MustCompile(`(?i)\b(promo|discount|coupon) code\b.{0,40}\b\d{1,2}\s?% off\b`),
	regexp.MustCompile(`(?i)\bcheck out my (channel|store|shop|course|ebook|newsletter)\b`),
	regexp.MustCompile(`(?i)\b(earn|make) \$?\d[\d,]*\+? (a|per) (day|week)\b`),
	regexp.MustCompile(`(?i)\b(dm|message) me (for|to get) (details|pricing|the link)\b`),
	regexp.MustCompile(`(?i)\b(crypto|bitcoin|nft) (giveaway|airdrop|signals)\b`),
	regexp.MustCompile(`(?i)\bonlyfans\b`),
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Gate applies the quality rules.
type Gate struct {
	cfg Config
}

// NewGate creates a gate. Zero thresholds take defaults.
func NewGate(cfg Config) *Gate {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultConfig.MinLength
	}
	if cfg.MinTitleLength <= 0 {
		cfg.MinTitleLength = DefaultConfig.MinTitleLength
	}
	if cfg.MaxForeignRatio <= 0 {
		cfg.MaxForeignRatio = DefaultConfig.MaxForeignRatio
	}
	if cfg.MinLettersForLID <= 0 {
		cfg.MinLettersForLID = DefaultConfig.MinLettersForLID
	}
	return &Gate{cfg: cfg}
}

// Classify runs items through a gate with the default thresholds.
func Classify(items []content.Item) Result {
	return NewGate(DefaultConfig).Classify(items)
}

// Classify runs every item through the rules in order; the first match wins.
func (g *Gate) Classify(items []content.Item) Result {
	var r Result
	for _, it := range items {
		reason := g.check(it)
		d := content.Decision{ItemID: it.ID, Stage: content.StageQuality, Verdict: content.Reject, Tier: content.TierNone, Reason: reason}
		switch reason {
		case "":
			d.Verdict = content.Pass
			r.Passed = append(r.Passed, it)
		case ReasonRecoverable:
			r.Recoverable = append(r.Recoverable, it)
		default:
			r.Filtered = append(r.Filtered, it)
		}
		r.Decisions = append(r.Decisions, d)
	}
	log.Printf("Quality gate: %d passed, %d filtered, %d recoverable", len(r.Passed), len(r.Filtered), len(r.Recoverable))
	return r
}

// check returns the rejection reason, or "" when the item passes.
func (g *Gate) check(it content.Item) string {
	if IsPlaceholder(it.Body) {
		if it.Kind == content.KindPost && g.substantiveTitle(it.Title) {
			return ReasonRecoverable
		}
		return ReasonRemoved
	}
	text := it.Text()
	if utf8.RuneCountInString(text) < g.cfg.MinLength {
		return ReasonTooShort
	}
	if letters, ratio := ForeignRatio(text); letters >= g.cfg.MinLettersForLID && ratio > g.cfg.MaxForeignRatio {
		return fmt.Sprintf("%s (%.0f%% non-Latin)", ReasonLanguage, ratio*100)
	}
	if IsSpam(text) {
		return ReasonSpam
	}
	return ""
}

func (g *Gate) substantiveTitle(title string) bool {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) < g.cfg.MinTitleLength {
		return false
	}
	return !stockTitles[normalizeTitle(title)]
}

// IsPlaceholder reports whether body is a removed/deleted/unavailable marker.
func IsPlaceholder(body string) bool {
	b := strings.ToLower(strings.TrimSpace(body))
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(b, p) && strings.HasSuffix(b, "]") {
			return true
		}
	}
	return false
}

// ForeignRatio returns the number of letters in s and the share that are not Latin script.
func ForeignRatio(s string) (letters int, ratio float64) {
	foreign := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !unicode.Is(unicode.Latin, r) {
			foreign++
		}
	}
	if letters == 0 {
		return 0, 0
	}
	return letters, float64(foreign) / float64(letters)
}

// IsSpam reports canned promotional phrasing or link dumps.
func IsSpam(s string) bool {
	if len(urlPattern.FindAllStringIndex(s, 4)) > 3 {
		return true
	}
	for _, p := range spamPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func normalizeTitle(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
