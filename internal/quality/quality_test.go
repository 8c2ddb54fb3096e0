package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/painscout/internal/content"
)

func post(id, title, body string) content.Item {
	return content.Item{ID: id, Kind: content.KindPost, Title: title, Body: body}
}

func TestRemovedBodyWithSubstantiveTitleIsRecoverable(t *testing.T) {
	it := post("r1", "lost hours and money to bad clients how do you spot red flags", "[removed]")
	r := Classify([]content.Item{it})

	require.Len(t, r.Recoverable, 1)
	assert.Empty(t, r.Passed)
	assert.Empty(t, r.Filtered)
	assert.Equal(t, ReasonRecoverable, r.Decisions[0].Reason)
}

func TestRemovedBodyWithWeakTitleIsFiltered(t *testing.T) {
	items := []content.Item{
		post("short", "Help please", "[deleted]"),
		post("stock", "Can someone please help me with this?", "[removed]"),
		{ID: "c1", Kind: content.KindComment, Body: "[removed]"},
		post("mod", "My client vanished after I delivered the final files", "[Removed by Reddit]"),
	}
	r := Classify(items)

	assert.Len(t, r.Filtered, 3)
	require.Len(t, r.Recoverable, 1)
	assert.Equal(t, "mod", r.Recoverable[0].ID)
}

func TestRules(t *testing.T) {
	tests := []struct {
		name   string
		item   content.Item
		reason string
	}{
		{"passes", post("a", "Client paid 90 days late", "Third time this year, and the contract said net 30."), ""},
		{"too short", post("b", "ugh", "clients"), ReasonTooShort},
		{"cyrillic", post("c", "Клиент не платит", "Уже три месяца жду оплату за проект, что делать?"), ReasonLanguage},
		{"spam", post("d", "Get paid faster", "Use my promo code FAST20 and never chase invoices again!"), ReasonSpam},
		{"link dump", post("e", "Resources", "https://a.io https://b.io https://c.io https://d.io more here"), ReasonSpam},
		{"latin accents pass", post("f", "Facturation en retard", "Mon client refuse de payer la facture depuis trois mois déjà."), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := NewGate(Config{}).check(tt.item)
			if tt.reason == "" {
				assert.Empty(t, reason)
				return
			}
			assert.True(t, strings.HasPrefix(reason, tt.reason), "got %q", reason)
		})
	}
}

func TestShortForeignPhraseNotFlagged(t *testing.T) {
	// A few non-Latin letters inside mostly Latin text stay under the ratio.
	it := post("g", "Client said 谢谢 and never paid", "I invoiced twice and they went silent for a month.")
	assert.Empty(t, NewGate(Config{}).check(it))
}

func TestPartition(t *testing.T) {
	items := []content.Item{
		post("1", "Client paid 90 days late", "Third time this year, and the contract said net 30."),
		post("2", "x", ""),
		post("3", "lost hours and money to bad clients how do you spot red flags", "[removed]"),
		post("4", "Offer", "Click here for a limited time offer on invoicing software"),
		post("5", "Клиент не платит", "Уже три месяца жду оплату за проект"),
		{ID: "6", Kind: content.KindComment, Body: "Same thing happened to me with an agency last spring."},
	}
	r := Classify(items)

	assert.Len(t, r.Decisions, len(items))
	seen := make(map[string]int)
	for _, bucket := range [][]content.Item{r.Passed, r.Filtered, r.Recoverable} {
		for _, it := range bucket {
			seen[it.ID]++
		}
	}
	assert.Len(t, seen, len(items))
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %s in %d buckets", id, n)
	}
	assert.Equal(t, len(items), len(r.Passed)+len(r.Filtered)+len(r.Recoverable))
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder(" [removed] "))
	assert.True(t, IsPlaceholder("[deleted]"))
	assert.True(t, IsPlaceholder("[unavailable]"))
	assert.False(t, IsPlaceholder(""))
	assert.False(t, IsPlaceholder("[removed] my earlier post because of doxxing"))
}
