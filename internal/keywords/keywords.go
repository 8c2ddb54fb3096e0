// Package keywords is the cheap, recall-first pre-filter ahead of the classifiers.
package keywords

import (
	"log"
	"regexp"
	"strings"

	"github.com/TobiSchelling/painscout/internal/content"
)

// Reasons name the check that let an item through.
const (
	ReasonPhrase           = "phrase"
	ReasonIndicatorKeyword = "indicator keyword"
	ReasonIdiom            = "problem idiom"
	ReasonCooccurrence     = "keyword with indicator"
	ReasonKeyword          = "keyword"
	ReasonIndicators       = "multiple indicators"
	ReasonNoMatch          = "no keyword or indicator"
)

// MinKeywordLength is the shortest keyword that passes on its own.
const MinKeywordLength = 4

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}$']+`)

// Passes reports whether text survives the gate.
func Passes(text string, keywords []string) bool {
	ok, _ := Match(text, keywords)
	return ok
}

// Match evaluates the checks in order and returns the first that fires.
// Every check is existence-based, so more matches never turn a pass into a fail.
func Match(text string, keywords []string) (bool, string) {
	t := normalize(text)
	words := wordSet(wordPattern.FindAllString(t, -1)...)

	var single []string
	for _, kw := range keywords {
		kw = normalize(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			if containsPhrase(t, kw) {
				return true, ReasonPhrase
			}
			continue
		}
		single = append(single, kw)
	}

	for _, kw := range single {
		if indicators[kw] && words[kw] {
			return true, ReasonIndicatorKeyword
		}
	}

	for _, idiom := range idioms {
		if containsPhrase(t, idiom) {
			return true, ReasonIdiom
		}
	}

	found := 0
	for w := range words {
		if indicators[w] {
			found++
		}
	}

	for _, kw := range single {
		if words[kw] && found > 0 {
			return true, ReasonCooccurrence
		}
	}
	for _, kw := range single {
		if len([]rune(kw)) >= MinKeywordLength && words[kw] {
			return true, ReasonKeyword
		}
	}
	if found >= 2 {
		return true, ReasonIndicators
	}
	return false, ReasonNoMatch
}

// Result splits items by the gate.
type Result struct {
	Passed    []content.Item
	Filtered  []content.Item
	Decisions []content.Decision
}

// Filter applies the gate to items, preserving order.
func Filter(items []content.Item, keywords []string) Result {
	var r Result
	for _, it := range items {
		ok, reason := Match(it.Text(), keywords)
		d := content.Decision{ItemID: it.ID, Stage: content.StageKeyword, Verdict: content.Reject, Tier: content.TierNone, Reason: reason}
		if ok {
			d.Verdict = content.Pass
			r.Passed = append(r.Passed, it)
		} else {
			r.Filtered = append(r.Filtered, it)
		}
		r.Decisions = append(r.Decisions, d)
	}
	log.Printf("Keyword gate: %d passed, %d filtered", len(r.Passed), len(r.Filtered))
	return r
}

func normalize(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	return strings.Join(strings.Fields(s), " ")
}

// containsPhrase finds phrase in t without matching inside a longer word.
func containsPhrase(t, phrase string) bool {
	for from := 0; ; {
		i := strings.Index(t[from:], phrase)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(phrase)
		before := start == 0 || !isWordByte(phrase[0]) || !isWordByte(t[start-1])
		after := end == len(t) || !isWordByte(phrase[len(phrase)-1]) || !isWordByte(t[end])
		if before && after {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 0x80
}
