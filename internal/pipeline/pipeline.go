// Package pipeline wires the fetch, filter, score and cluster stages into one research run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/painscout/internal/archive"
	"github.com/TobiSchelling/painscout/internal/cluster"
	"github.com/TobiSchelling/painscout/internal/collect"
	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/database"
	"github.com/TobiSchelling/painscout/internal/embedding"
	"github.com/TobiSchelling/painscout/internal/focus"
	"github.com/TobiSchelling/painscout/internal/hypothesis"
	"github.com/TobiSchelling/painscout/internal/keywords"
	"github.com/TobiSchelling/painscout/internal/llm"
	"github.com/TobiSchelling/painscout/internal/metrics"
	"github.com/TobiSchelling/painscout/internal/quality"
	"github.com/TobiSchelling/painscout/internal/similarity"
	"github.com/TobiSchelling/painscout/internal/triage"
)

// Scorer selects how the embedding similarity filter takes part in a run.
type Scorer string

const (
	// ScorerClassifier uses the LLM tiers only.
	ScorerClassifier Scorer = "classifier"
	// ScorerEmbedding replaces the problem classifier with similarity tiers.
	ScorerEmbedding Scorer = "embedding"
	// ScorerHybrid keeps the classifier tiers and rescues HIGH-similarity
	// items the classifier rejected as related.
	ScorerHybrid Scorer = "hybrid"
)

// ParseScorer validates a scorer name. Empty means classifier.
func ParseScorer(s string) (Scorer, error) {
	switch Scorer(strings.ToLower(s)) {
	case "", ScorerClassifier:
		return ScorerClassifier, nil
	case ScorerEmbedding:
		return ScorerEmbedding, nil
	case ScorerHybrid:
		return ScorerHybrid, nil
	}
	return "", fmt.Errorf("unknown scorer %q (want classifier, embedding or hybrid)", s)
}

// ErrNoHypothesis is returned for an empty research question.
var ErrNoHypothesis = errors.New("hypothesis is empty")

// Request describes one research run.
type Request struct {
	Hypothesis hypothesis.Hypothesis
	Sources    []string
	Target     int
	TimeRange  *collect.TimeRange
	Scorer     Scorer
	Save       bool // persist the run when a database is configured
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Counts is the funnel of a run.
type Counts struct {
	Fetched       int
	PassedQuality int
	Recoverable   int
	PassedKeyword int
	PassedDomain  int
	Core          int
	Related       int
	Recovered     int
	Rescued       int
}

// Report holds the results of a research run.
type Report struct {
	RunID       string
	Hypothesis  hypothesis.Hypothesis
	Mode        hypothesis.Mode
	Scorer      Scorer
	Focus       focus.Focus
	Steps       []StepResult
	Sources     []collect.SourceStats
	Counts      Counts
	Boosted     bool
	Signals     []content.Signal
	Clusters    []*cluster.Cluster
	Unclustered []content.Signal
	Ledger      *content.Ledger
	Markdown    string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Deps are the collaborators a pipeline runs against. Provider, Embeddings,
// Focus and DB may be nil.
type Deps struct {
	Source     archive.Source
	Provider   llm.Provider
	Embeddings *embedding.Service
	Focus      *focus.Extractor
	DB         *database.DB
}

// Options tune the stages.
type Options struct {
	Collect    collect.Config
	Quality    quality.Config
	Domain     triage.Config
	Problem    triage.Config
	Similarity similarity.Config
	Cluster    cluster.Config
	Target     int
}

// Pipeline runs research requests.
type Pipeline struct {
	deps    Deps
	opts    Options
	closers []func() error
}

// NewWithDeps creates a pipeline over explicit collaborators.
func NewWithDeps(deps Deps, opts Options) *Pipeline {
	if deps.Focus == nil {
		deps.Focus = focus.NewExtractor(deps.Provider, focus.NewMemoryCache(0, nil))
	}
	if opts.Target <= 0 {
		opts.Target = 300
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Close releases resources opened by New.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Run executes fetch → quality → keywords → domain → problem match (with
// title-only recovery) → similarity → clustering, then stores the run.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Hypothesis.IsEmpty() {
		return nil, ErrNoHypothesis
	}
	if len(req.Sources) == 0 {
		return nil, fmt.Errorf("no sources to search")
	}
	if req.Target <= 0 {
		req.Target = p.opts.Target
	}
	if req.Scorer == "" {
		req.Scorer = ScorerClassifier
	}
	if req.Scorer != ScorerClassifier && p.deps.Embeddings == nil {
		log.Printf("No embedding service, falling back from %s to classifier scorer", req.Scorer)
		req.Scorer = ScorerClassifier
	}

	profile := hypothesis.Analyze(req.Hypothesis)
	r := &Report{
		RunID:      uuid.NewString(),
		Hypothesis: req.Hypothesis,
		Mode:       profile.Mode(),
		Scorer:     req.Scorer,
		Ledger:     &content.Ledger{},
		StartedAt:  time.Now().UTC(),
	}
	statement := req.Hypothesis.Statement()
	log.Printf("Research run %s: %q (%s mode, %s scorer)", r.RunID, statement, r.Mode, r.Scorer)

	saving := req.Save && p.deps.DB != nil
	if saving {
		if err := p.deps.DB.CreateRun(&database.Run{
			ID: r.RunID, Hypothesis: statement, Mode: r.Mode.String(), Scorer: string(r.Scorer),
			Sources: req.Sources, Target: req.Target,
		}); err != nil {
			return nil, err
		}
	}

	err := p.run(ctx, req, profile, r)
	r.FinishedAt = time.Now().UTC()
	if err != nil {
		if saving {
			if ferr := p.deps.DB.FailRun(r.RunID, err); ferr != nil {
				log.Printf("Recording failed run: %v", ferr)
			}
		}
		return r, err
	}

	stored := toRows(r, req)
	r.Markdown = *stored.run.ReportMarkdown
	if saving {
		step := StepResult{Name: "Save", Summary: "Stored run " + r.RunID}
		if err := p.deps.DB.CompleteRun(stored.run, stored.signals, stored.clusters, stored.decisions); err != nil {
			step = StepResult{Name: "Save", Err: err}
			log.Printf("Storing run %s failed: %v", r.RunID, err)
		}
		r.Steps = append(r.Steps, step)
	}
	return r, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, profile hypothesis.Profile, r *Report) error {
	statement := req.Hypothesis.Statement()

	// Focus
	r.Focus = p.deps.Focus.Focus(ctx, req.Hypothesis)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Focus",
		Summary: fmt.Sprintf("%d keywords, domain %q", len(r.Focus.Keywords), r.Focus.Domain),
	})

	// Fetch
	fetched, err := collect.NewFetcher(p.deps.Source, p.opts.Collect).Fetch(ctx, req.Sources, req.Target, req.TimeRange)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Fetch", Err: err})
		return err
	}
	r.Sources = fetched.Sources
	r.Counts.Fetched = len(fetched.Items)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d items from %d sources (%d duplicates)", len(fetched.Items), len(req.Sources), fetched.Duplicates),
	})

	// Quality
	qr := quality.NewGate(p.opts.Quality).Classify(fetched.Items)
	record(r.Ledger, qr.Decisions)
	r.Counts.PassedQuality = len(qr.Passed)
	r.Counts.Recoverable = len(qr.Recoverable)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Quality",
		Summary: fmt.Sprintf("%d passed, %d filtered, %d recoverable", len(qr.Passed), len(qr.Filtered), len(qr.Recoverable)),
	})

	// Keywords
	kr := keywords.Filter(qr.Passed, r.Focus.Keywords)
	record(r.Ledger, kr.Decisions)
	r.Counts.PassedKeyword = len(kr.Passed)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Keywords",
		Summary: fmt.Sprintf("%d passed, %d filtered", len(kr.Passed), len(kr.Filtered)),
	})

	// Domain
	gate := triage.NewDomainGate(p.deps.Provider, p.opts.Domain)
	dr, err := gate.Classify(ctx, kr.Passed, r.Focus.Domain, r.Focus.AntiDomains)
	if err != nil {
		return err
	}
	r.Ledger.Append(dr.Decisions...)
	r.Counts.PassedDomain = len(dr.Passed)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Domain",
		Summary: fmt.Sprintf("%d in domain, %d filtered%s", len(dr.Passed), len(dr.Filtered), failedOpen(dr.Batches)),
	})

	// Problem match
	classifier := triage.NewProblemClassifier(p.deps.Provider, p.opts.Problem)
	signals, err := p.score(ctx, req, profile, classifier, dr.Passed, r)
	if err != nil {
		return err
	}

	// Title-only recovery
	rec, err := triage.Recover(ctx, gate, classifier, qr.Recoverable, req.Hypothesis, profile, r.Focus.Domain, r.Focus.AntiDomains)
	if err != nil {
		return err
	}
	r.Ledger.Append(rec.Decisions...)
	r.Counts.Recovered = len(rec.Signals)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Recover",
		Summary: fmt.Sprintf("%d of %d removed-body posts recovered from titles", len(rec.Signals), rec.Attempted),
	})

	r.Signals = union(signals, rec.Signals)
	for _, s := range r.Signals {
		switch s.Tier {
		case content.TierCore:
			r.Counts.Core++
		case content.TierRelated:
			r.Counts.Related++
		}
	}

	// Cluster
	r.Clusters, r.Unclustered = p.cluster(ctx, statement, r.Signals)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Cluster",
		Summary: fmt.Sprintf("%d themes, %d unclustered signals", len(r.Clusters), len(r.Unclustered)),
	})

	log.Printf("Run %s complete: %d core, %d related, %d recovered, %d themes",
		r.RunID, r.Counts.Core, r.Counts.Related, r.Counts.Recovered, len(r.Clusters))
	return nil
}

// score turns domain-passed items into signals using the requested scorer.
func (p *Pipeline) score(ctx context.Context, req Request, profile hypothesis.Profile, classifier *triage.ProblemClassifier, items []content.Item, r *Report) ([]content.Signal, error) {
	statement := req.Hypothesis.Statement()

	var sim *similarity.Result
	if req.Scorer != ScorerClassifier && len(items) > 0 {
		var err error
		sim, err = similarity.NewFilter(p.deps.Embeddings, p.deps.Provider, p.opts.Similarity).Score(ctx, statement, r.Focus, items)
		if err != nil {
			log.Printf("Similarity scoring failed, using classifier tiers: %v", err)
			r.Steps = append(r.Steps, StepResult{Name: "Similarity", Err: err})
			sim = nil
		} else {
			r.Ledger.Append(sim.Decisions...)
			r.Boosted = sim.Boosted
			r.Steps = append(r.Steps, StepResult{
				Name:    "Similarity",
				Summary: fmt.Sprintf("%d high, %d medium, %d low%s", len(sim.High), len(sim.Medium), len(sim.Low), boostNote(sim)),
			})
		}
	}

	if req.Scorer == ScorerEmbedding && sim != nil {
		var signals []content.Signal
		for _, s := range sim.Accepted() {
			tier := content.TierRelated
			if s.Level == similarity.High {
				tier = content.TierCore
			}
			signals = append(signals, content.Signal{Item: s.Item, Tier: tier, Weight: tier.Weight(), Similarity: s.Score})
		}
		return inInputOrder(items, signals), nil
	}

	pr, err := classifier.Classify(ctx, items, req.Hypothesis, profile)
	if err != nil {
		return nil, err
	}
	r.Ledger.Append(pr.Decisions...)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Classify",
		Summary: fmt.Sprintf("%s mode: %d core, %d related, %d none%s", pr.Mode, len(pr.Core), len(pr.Related), len(pr.None), failedOpen(pr.Batches)),
	})
	signals := pr.Signals(false, 1)
	if sim == nil {
		return signals, nil
	}

	scores := make(map[string]float64)
	for _, s := range append(sim.Accepted(), sim.Low...) {
		scores[s.Item.ID] = s.Score
	}
	for i := range signals {
		signals[i].Similarity = scores[signals[i].Item.ID]
	}

	// Hybrid: HIGH similarity overrides a classifier rejection.
	for _, s := range sim.High {
		if !rejected(pr, s.Item.ID) {
			continue
		}
		signals = append(signals, content.Signal{
			Item: s.Item, Tier: content.TierRelated, Weight: content.TierRelated.Weight(), Similarity: s.Score,
		})
		r.Ledger.Append(content.Decision{
			ItemID: s.Item.ID, Stage: content.StageSimilarity, Verdict: content.Pass, Tier: content.TierRelated,
			Reason: fmt.Sprintf("rescued: high similarity %.3f over classifier rejection", s.Score),
		})
		r.Counts.Rescued++
	}
	return inInputOrder(items, signals), nil
}

func (p *Pipeline) cluster(ctx context.Context, statement string, signals []content.Signal) ([]*cluster.Cluster, []content.Signal) {
	if len(signals) == 0 {
		return nil, nil
	}
	if p.deps.Embeddings == nil {
		log.Println("No embedding service, skipping clustering")
		return nil, signals
	}
	texts := make([]string, len(signals))
	for i, s := range signals {
		texts[i] = s.Item.Text()
	}
	vectors, err := p.deps.Embeddings.Embed(ctx, texts)
	if err != nil {
		log.Printf("Embedding signals for clustering failed: %v", err)
		return nil, signals
	}
	res := cluster.Group(signals, vectors, p.opts.Cluster)
	cluster.NewLabeler(p.deps.Provider).Label(ctx, statement, res.Clusters)
	return res.Clusters, res.Unclustered
}

// DryRun reports what a run would do without calling any collaborator.
func (p *Pipeline) DryRun(req Request) *Report {
	profile := hypothesis.Analyze(req.Hypothesis)
	if req.Target <= 0 {
		req.Target = p.opts.Target
	}
	if req.Scorer == "" {
		req.Scorer = ScorerClassifier
	}
	r := &Report{Hypothesis: req.Hypothesis, Mode: profile.Mode(), Scorer: req.Scorer, Focus: focus.Heuristic(req.Hypothesis)}

	perSource := 0
	if len(req.Sources) > 0 {
		perSource = (req.Target + len(req.Sources) - 1) / len(req.Sources)
	}
	r.Steps = append(r.Steps,
		StepResult{Name: "Fetch", Summary: fmt.Sprintf("[dry-run] %d sources, ~%d items each (target %d)", len(req.Sources), perSource, req.Target)},
		StepResult{Name: "Keywords", Summary: fmt.Sprintf("[dry-run] heuristic keywords: %s", strings.Join(r.Focus.Keywords, ", "))},
		StepResult{Name: "Classify", Summary: fmt.Sprintf("[dry-run] %s mode%s", r.Mode, modeDetail(profile))},
	)

	llmState := "no LLM provider: classifier batches will pass through"
	if p.deps.Provider != nil {
		llmState = "LLM provider configured"
	}
	r.Steps = append(r.Steps, StepResult{Name: "LLM", Summary: "[dry-run] " + llmState})

	embState := "no embedding service: clustering skipped, classifier scorer only"
	if p.deps.Embeddings != nil {
		embState = fmt.Sprintf("embeddings via %s, scorer %s", p.deps.Embeddings.Model(), req.Scorer)
	}
	r.Steps = append(r.Steps, StepResult{Name: "Similarity", Summary: "[dry-run] " + embState})
	return r
}

func modeDetail(p hypothesis.Profile) string {
	switch p.Mode() {
	case hypothesis.ModeContext:
		return fmt.Sprintf(" (setting %q)", p.Context.Setting)
	case hypothesis.ModeTransition:
		return fmt.Sprintf(" (%s → %s)", p.Transition.Origin, p.Transition.Target)
	}
	return ""
}

func record(l *content.Ledger, ds []content.Decision) {
	for _, d := range ds {
		metrics.StageDecisions.WithLabelValues(string(d.Stage), string(d.Verdict)).Inc()
	}
	l.Append(ds...)
}

func rejected(pr *triage.ProblemResult, id string) bool {
	for _, it := range pr.None {
		if it.ID == id {
			return true
		}
	}
	return false
}

func failedOpen(batches []triage.BatchResult) string {
	n := 0
	for _, b := range batches {
		if b.FailedOpen {
			n++
		}
	}
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d batches failed open)", n)
}

func boostNote(sim *similarity.Result) string {
	if !sim.Boosted {
		return ""
	}
	return fmt.Sprintf(" (boosted with %d keywords)", len(sim.BoostKeywords))
}

// inInputOrder sorts signals by the position of their item in items.
func inInputOrder(items []content.Item, signals []content.Signal) []content.Signal {
	pos := make(map[string]int, len(items))
	for i, it := range items {
		pos[it.ID] = i
	}
	out := make([]content.Signal, 0, len(signals))
	placed := make([]*content.Signal, len(items))
	for i := range signals {
		if j, ok := pos[signals[i].Item.ID]; ok && placed[j] == nil {
			placed[j] = &signals[i]
		}
	}
	for _, s := range placed {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// union appends recovered signals whose items are not already present.
func union(full, recovered []content.Signal) []content.Signal {
	seen := make(map[string]bool, len(full))
	out := append([]content.Signal{}, full...)
	for _, s := range full {
		seen[s.Item.ID] = true
	}
	for _, s := range recovered {
		if !seen[s.Item.ID] {
			seen[s.Item.ID] = true
			out = append(out, s)
		}
	}
	return out
}
