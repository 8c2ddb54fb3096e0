package focus

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/painscout/internal/hypothesis"
)

type mockProvider struct {
	response string
	err      error
	calls    int
}

func (m *mockProvider) Generate(_ context.Context, _ string, _ int) (string, error) {
	m.calls++
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

var freelancers = hypothesis.Hypothesis{Text: "Freelancers struggling to get paid on time by clients"}

const goodResponse = "```json\n" + `{
  "keywords": ["Late Payment", "invoice", "net 30", "ghosted", "invoice"],
  "problem_text": "I finish the work and then wait months for the client to pay.",
  "domain": "Freelancing",
  "anti_domains": ["payroll software", "salary negotiation"]
}` + "\n```"

func TestFocusFromLLM(t *testing.T) {
	p := &mockProvider{response: goodResponse}
	h := freelancers
	h.ProblemLanguage = []string{"client won't pay"}
	h.ExcludeTopics = []string{"employee wages"}

	f := NewExtractor(p, nil).Focus(context.Background(), h)

	assert.Equal(t, []string{"client won't pay", "late payment", "invoice", "net 30", "ghosted"}, f.Keywords)
	assert.Equal(t, "freelancing", f.Domain)
	assert.Equal(t, []string{"employee wages", "payroll software", "salary negotiation"}, f.AntiDomains)
	assert.Contains(t, f.ProblemText, "wait months")
}

func TestFocusIsCachedPerHypothesis(t *testing.T) {
	p := &mockProvider{response: goodResponse}
	e := NewExtractor(p, NewMemoryCache(time.Hour, nil))

	first := e.Focus(context.Background(), freelancers)
	second := e.Focus(context.Background(), hypothesis.Hypothesis{Text: "  freelancers STRUGGLING to get paid on time by clients "})

	assert.Equal(t, 1, p.calls)
	assert.Equal(t, first, second)
}

func TestFocusFallsBackToHeuristic(t *testing.T) {
	for name, p := range map[string]*mockProvider{
		"error":   {err: errors.New("down")},
		"garbage": {response: "I can't help with that"},
		"empty":   {response: `{"keywords": [], "problem_text": ""}`},
	} {
		t.Run(name, func(t *testing.T) {
			cache := NewMemoryCache(time.Hour, nil)
			f := NewExtractor(p, cache).Focus(context.Background(), freelancers)
			assert.Equal(t, Heuristic(freelancers), f)
			_, cached := cache.Get(freelancers.Key())
			assert.False(t, cached, "heuristic focus is not cached")
		})
	}
}

func TestHeuristic(t *testing.T) {
	f := Heuristic(hypothesis.Hypothesis{Text: "Remote workers struggling with video call fatigue"})
	assert.Contains(t, f.Keywords, "remote workers")
	assert.Contains(t, f.Keywords, "call fatigue")
	assert.Contains(t, f.Keywords, "fatigue")
	assert.NotContains(t, f.Keywords, "struggling")
	assert.Equal(t, "remote", f.Domain)
	assert.Equal(t, "Remote workers struggling with video call fatigue", f.ProblemText)

	structured := Heuristic(hypothesis.Hypothesis{Audience: "Home cooks", Problem: "knives going dull"})
	assert.Equal(t, "home cooks", structured.Domain)
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(time.Hour, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("k", Focus{Domain: "x"})
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok = c.Get("k")
	assert.False(t, ok)

	c.Put("a", Focus{})
	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, c.Prune())
}

func TestBoltCachePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focus.db")
	bc, err := OpenBoltCache(path, time.Hour)
	require.NoError(t, err)
	bc.Put("k", Focus{Keywords: []string{"invoice"}, Domain: "freelancing"})
	require.NoError(t, bc.Close())

	bc, err = OpenBoltCache(path, time.Hour)
	require.NoError(t, err)
	defer bc.Close()

	f, ok := bc.Get("k")
	require.True(t, ok)
	assert.Equal(t, "freelancing", f.Domain)
	assert.Equal(t, 1, bc.Len())

	bc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, ok = bc.Get("k")
	assert.False(t, ok, "expired entry")
	n, err := bc.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, bc.Len())
}

func TestMemoryCacheReadsThrough(t *testing.T) {
	bc, err := OpenBoltCache(filepath.Join(t.TempDir(), "focus.db"), time.Hour)
	require.NoError(t, err)
	defer bc.Close()
	bc.Put("k", Focus{Domain: "persisted"})

	mc := NewMemoryCache(time.Hour, bc)
	f, ok := mc.Get("k")
	require.True(t, ok)
	assert.Equal(t, "persisted", f.Domain)

	mc.Put("j", Focus{Domain: "new"})
	_, ok = bc.Get("j")
	assert.True(t, ok, "write-through")
}
