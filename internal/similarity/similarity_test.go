package similarity

import (
	"context"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/embedding"
	"github.com/TobiSchelling/painscout/internal/focus"
)

// planeEmbedder places texts on the unit circle: anything mentioning "$0" at
// cosine 0.341 from the hypothesis axis, "weather" orthogonal, the rest on it.
type planeEmbedder struct{}

func (planeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		switch {
		case strings.Contains(t, "$0"):
			out[i] = []float64{0.341, math.Sqrt(1 - 0.341*0.341)}
		case strings.Contains(t, "weather"):
			out[i] = []float64{0, 1}
		default:
			out[i] = []float64{1, 0}
		}
	}
	return out, nil
}

type mockProvider struct {
	response string
	calls    int
}

func (m *mockProvider) Generate(_ context.Context, _ string, _ int) (string, error) {
	m.calls++
	return m.response, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

const freelancers = "Freelancers struggling to get paid on time by clients"

var unpaid = content.Item{ID: "a", Kind: content.KindPost, Title: "6 months of work. $0 payment.", Body: "Client keeps saying next week."}

func newFilter(provider *mockProvider, cfg Config) *Filter {
	svc := embedding.NewService(planeEmbedder{}, embedding.NewMemoryCache(), "test")
	if provider == nil {
		return NewFilter(svc, nil, cfg)
	}
	return NewFilter(svc, provider, cfg)
}

func TestClassifyScore(t *testing.T) {
	tests := []struct {
		score   float64
		boosted bool
		want    Level
	}{
		{0.50, false, High},
		{0.72, true, High},
		{0.4999, false, Medium},
		{0.35, false, Medium},
		{0.349, false, Low},
		{0.341, false, Low},
		{0.341, true, Medium},
		{0.30, true, Medium},
		{0.299, true, Low},
		{0, false, Low},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyScore(tt.score, tt.boosted), "score %.4f boosted %v", tt.score, tt.boosted)
	}
}

func TestScoreStandardDropsBorderline(t *testing.T) {
	f := newFilter(nil, DefaultConfig)
	res, err := f.Score(context.Background(), freelancers, focus.Focus{}, []content.Item{
		unpaid,
		{ID: "b", Title: "Client paid late again"},
		{ID: "c", Title: "Nice weather today"},
	})
	require.NoError(t, err)

	require.Len(t, res.High, 1)
	assert.Equal(t, "b", res.High[0].Item.ID)
	assert.Empty(t, res.Medium)
	require.Len(t, res.Low, 2)
	assert.Equal(t, "a", res.Low[0].Item.ID)
	assert.InDelta(t, 0.341, res.Low[0].Raw, 1e-4)
	assert.False(t, res.Boosted)
	assert.Len(t, res.Decisions, 3)
	assert.Equal(t, content.Reject, res.Decisions[0].Verdict)
}

func TestScoreCoverageBoostRescuesBorderline(t *testing.T) {
	cfg := DefaultConfig
	cfg.CoverageBoost = true
	p := &mockProvider{response: `{"keywords": ["Unpaid Invoice", "ghosted"]}`}

	res, err := newFilter(p, cfg).Score(context.Background(), freelancers, focus.Focus{}, []content.Item{unpaid})
	require.NoError(t, err)

	assert.True(t, res.Boosted)
	assert.Equal(t, []string{"unpaid invoice", "ghosted"}, res.BoostKeywords)
	require.Len(t, res.Medium, 1)
	assert.False(t, res.Medium[0].BoostHit)
	assert.InDelta(t, 0.341, res.Medium[0].Score, 1e-4)
	assert.Equal(t, 1, p.calls)
}

func TestScoreBoostKeywordBonus(t *testing.T) {
	cfg := DefaultConfig
	cfg.CoverageBoost = true

	// Without a provider the focus keywords are used.
	res, err := newFilter(nil, cfg).Score(context.Background(), freelancers,
		focus.Focus{Keywords: []string{"Payment"}}, []content.Item{unpaid})
	require.NoError(t, err)

	require.Len(t, res.Medium, 1)
	s := res.Medium[0]
	assert.True(t, s.BoostHit)
	assert.InDelta(t, 0.391, s.Score, 1e-4)
	assert.InDelta(t, 0.341, s.Raw, 1e-4)
	assert.Contains(t, res.Decisions[0].Reason, "boost keyword")
}

func TestScoreBoostNotNeeded(t *testing.T) {
	cfg := DefaultConfig
	cfg.CoverageBoost = true
	cfg.MinSignals = 1
	p := &mockProvider{response: `{"keywords": ["x"]}`}

	res, err := newFilter(p, cfg).Score(context.Background(), freelancers, focus.Focus{},
		[]content.Item{unpaid, {ID: "b", Title: "Client paid late again"}})
	require.NoError(t, err)
	assert.False(t, res.Boosted)
	assert.Zero(t, p.calls)
	assert.Len(t, res.Accepted(), 1)
}

func TestFacets(t *testing.T) {
	facets := Facets("Freelancers struggling to get paid", "freelancers struggling to get paid ")
	assert.Len(t, facets, 4, "problem text duplicating the statement is dropped")
	assert.Equal(t, "Freelancers struggling to get paid", facets[0])
	assert.Contains(t, facets[1], "freelancers struggling")

	assert.Equal(t, []string{"only problem"}, Facets("", "only problem"))
}

func TestFacetsLowercasesMultiByteFirstRune(t *testing.T) {
	facets := Facets("Élèves qui décrochent en cours", "")
	require.Len(t, facets, 4)
	assert.Equal(t, "I'm really struggling with this: élèves qui décrochent en cours", facets[1])
	for _, f := range facets {
		assert.True(t, utf8.ValidString(f), f)
		assert.NotContains(t, f, "\uFFFD")
	}
}

func TestScoreEmpty(t *testing.T) {
	res, err := newFilter(nil, DefaultConfig).Score(context.Background(), freelancers, focus.Focus{}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Accepted())
}
