// Package cluster groups accepted signals into themes by embedding similarity.
package cluster

import (
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/embedding"
)

const (
	DefaultThreshold   = 0.70
	DefaultMinSize     = 2
	DefaultMaxClusters = 8
	DefaultExcerpts    = 3
	excerptLength      = 280
)

// CohesionSlack scales the pairwise threshold into the minimum average
// similarity a merged cluster may have.
const CohesionSlack = 0.9

// Config controls the greedy merge.
type Config struct {
	Threshold   float64
	MinSize     int
	MaxClusters int
	Excerpts    int
}

// DefaultConfig returns the default clustering settings.
func DefaultConfig() Config {
	return Config{
		Threshold:   DefaultThreshold,
		MinSize:     DefaultMinSize,
		MaxClusters: DefaultMaxClusters,
		Excerpts:    DefaultExcerpts,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.MinSize <= 0 {
		c.MinSize = d.MinSize
	}
	if c.MaxClusters <= 0 {
		c.MaxClusters = d.MaxClusters
	}
	if c.Excerpts <= 0 {
		c.Excerpts = d.Excerpts
	}
	return c
}

// Cluster is a theme of similar signals.
type Cluster struct {
	ID       string
	Label    string
	Members  []content.Signal
	Centroid embedding.Vector
	Cohesion float64 // average pairwise cosine similarity of members
	Excerpts []string
}

// Result holds the clusters, largest first, and every signal not in one.
type Result struct {
	Clusters    []*Cluster
	Unclustered []content.Signal
}

// Group clusters signals whose vectors (aligned by index) are similar. Signals
// without a usable vector are unclustered. Two clusters merge only if the
// average pairwise similarity of the union stays at or above
// Threshold × CohesionSlack, so similar pairs cannot chain into loose groups.
func Group(signals []content.Signal, vectors []embedding.Vector, cfg Config) *Result {
	cfg = cfg.withDefaults()
	result := &Result{}

	// Index the signals that can take part.
	var valid []int
	dim := 0
	for i := range signals {
		if i >= len(vectors) || len(vectors[i]) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(vectors[i])
		}
		if len(vectors[i]) == dim {
			valid = append(valid, i)
		}
	}

	n := len(valid)
	sim := make([][]float64, n)
	for a := range sim {
		sim[a] = make([]float64, n)
	}
	var pairs []pair
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			s := embedding.Cosine(vectors[valid[a]], vectors[valid[b]])
			sim[a][b], sim[b][a] = s, s
			if s >= cfg.Threshold {
				pairs = append(pairs, pair{a, b, s})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].sim > pairs[j].sim })

	groups := merge(n, pairs, sim, cfg.Threshold*CohesionSlack)

	// Largest clusters first; ties broken by total weight, then input order.
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].members) != len(groups[j].members) {
			return len(groups[i].members) > len(groups[j].members)
		}
		wi, wj := groups[i].weight(signals, valid), groups[j].weight(signals, valid)
		if wi != wj {
			return wi > wj
		}
		return groups[i].members[0] < groups[j].members[0]
	})

	clustered := make(map[int]bool)
	for _, g := range groups {
		if len(g.members) < cfg.MinSize || len(result.Clusters) == cfg.MaxClusters {
			continue
		}
		c := &Cluster{ID: uuid.NewString(), Cohesion: g.cohesion()}
		var vs []embedding.Vector
		for _, m := range g.members {
			idx := valid[m]
			clustered[idx] = true
			c.Members = append(c.Members, signals[idx])
			vs = append(vs, vectors[idx])
		}
		c.Centroid = embedding.Mean(vs)
		c.Excerpts = excerpts(c.Members, cfg.Excerpts)
		c.Label = generateLabel(c.Members)
		result.Clusters = append(result.Clusters, c)
	}

	for i, s := range signals {
		if !clustered[i] {
			result.Unclustered = append(result.Unclustered, s)
		}
	}

	log.Printf("Clustering: %d clusters, %d unclustered from %d signals",
		len(result.Clusters), len(result.Unclustered), len(signals))
	return result
}

type pair struct {
	a, b int
	sim  float64
}

type group struct {
	members []int   // indexes into the valid set, ascending
	sum     float64 // sum of pairwise similarities
}

func (g *group) cohesion() float64 {
	n := len(g.members)
	if n < 2 {
		return 1
	}
	return g.sum / float64(n*(n-1)/2)
}

func (g *group) weight(signals []content.Signal, valid []int) float64 {
	w := 0.0
	for _, m := range g.members {
		w += signals[valid[m]].Weight
	}
	return w
}

// merge runs the cohesion-bounded greedy merge over pairs sorted by similarity.
func merge(n int, pairs []pair, sim [][]float64, floor float64) []*group {
	owner := make([]*group, n)
	for i := range owner {
		owner[i] = &group{members: []int{i}}
	}

	for _, p := range pairs {
		ga, gb := owner[p.a], owner[p.b]
		if ga == gb {
			continue
		}
		cross := 0.0
		for _, x := range ga.members {
			for _, y := range gb.members {
				cross += sim[x][y]
			}
		}
		merged := &group{
			members: append(append([]int{}, ga.members...), gb.members...),
			sum:     ga.sum + gb.sum + cross,
		}
		if merged.cohesion() < floor {
			continue
		}
		sort.Ints(merged.members)
		for _, m := range merged.members {
			owner[m] = merged
		}
	}

	seen := make(map[*group]bool)
	var out []*group
	for _, g := range owner {
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}

// excerpts returns previews of the highest-scoring members: weight first, then
// similarity, then archive score.
func excerpts(members []content.Signal, n int) []string {
	ranked := append([]content.Signal{}, members...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return a.Item.Score > b.Item.Score
	})
	var out []string
	for _, s := range ranked[:min(n, len(ranked))] {
		out = append(out, s.Item.Excerpt(excerptLength))
	}
	return out
}
