package keywords

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TobiSchelling/painscout/internal/content"
)

var freelanceKeywords = []string{"paid on time", "late payment", "invoice", "clients", "payment", "net"}

func TestMatchChecks(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     bool
		reason   string
	}{
		{"phrase", "Nobody gets paid on time here", freelanceKeywords, true, ReasonPhrase},
		{"indicator keyword", "Everything is overdue", []string{"overdue"}, true, ReasonIndicatorKeyword},
		{"idiom", "6 months of work. $0 payment.", nil, true, ReasonIdiom},
		{"keyword with indicator", "net terms are a hassle", []string{"net"}, true, ReasonCooccurrence},
		{"long keyword alone", "Sending an invoice tomorrow", freelanceKeywords, true, ReasonKeyword},
		{"two indicators", "So frustrated, the project is delayed again", nil, true, ReasonIndicators},
		{"short keyword alone", "the net is wide", []string{"net"}, false, ReasonNoMatch},
		{"one indicator", "I hate mondays", nil, false, ReasonNoMatch},
		{"no partial words", "invoices galore", []string{"invoice"}, false, ReasonNoMatch},
		{"no match", "Look at this sunset photo", freelanceKeywords, false, ReasonNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Match(tt.text, tt.keywords)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestZeroDollarPaymentPasses(t *testing.T) {
	assert.True(t, Passes("6 months of work. $0 payment.\nThe agency keeps promising next week.", freelanceKeywords))
}

func TestDollarIdiomNeedsBoundary(t *testing.T) {
	ok, reason := Match("Quoted $050 flat", nil)
	assert.False(t, ok)
	assert.Equal(t, ReasonNoMatch, reason)
}

func TestMonotonicInIndicators(t *testing.T) {
	base := []string{
		"Sending an invoice tomorrow",
		"I hate mondays",
		"Look at this sunset photo",
		"the net is wide",
	}
	extra := []string{"frustrated", "overdue", "ghosted", "nightmare"}
	for _, text := range base {
		before := Passes(text, freelanceKeywords)
		grown := text
		for _, w := range extra {
			grown += " " + w
			after := Passes(grown, freelanceKeywords)
			if before {
				assert.True(t, after, "adding %q flipped %q to fail", w, text)
			}
			before = after
		}
	}
}

func TestFilterRecordsDecisions(t *testing.T) {
	items := []content.Item{
		{ID: "a", Title: "Client paid 90 days late", Body: "Still waiting on the last invoice."},
		{ID: "b", Title: "Sunset", Body: "Look at this photo"},
	}
	r := Filter(items, freelanceKeywords)

	assert.Len(t, r.Passed, 1)
	assert.Len(t, r.Filtered, 1)
	assert.Len(t, r.Decisions, 2)
	assert.Equal(t, content.Pass, r.Decisions[0].Verdict)
	assert.Equal(t, content.StageKeyword, r.Decisions[1].Stage)
	assert.Equal(t, content.Reject, r.Decisions[1].Verdict)
}

func TestIndicatorsAreLowercase(t *testing.T) {
	for w := range indicators {
		assert.Equal(t, strings.ToLower(w), w)
	}
}
