package pipeline

import (
	"sort"
	"time"

	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/database"
	"github.com/TobiSchelling/painscout/internal/report"
)

const signalExcerptLength = 300

type rows struct {
	run       *database.Run
	signals   []database.RunSignal
	clusters  []database.RunCluster
	decisions []database.RunDecision
	counts    []database.StageCount
}

func (rw rows) markdown() string {
	return report.Markdown(report.Input{Run: rw.run, Counts: rw.counts, Signals: rw.signals, Clusters: rw.clusters})
}

// toRows converts a finished report into its stored form.
func toRows(r *Report, req Request) rows {
	rw := rows{run: &database.Run{
		ID:             r.RunID,
		Hypothesis:     r.Hypothesis.Statement(),
		Mode:           r.Mode.String(),
		Scorer:         string(r.Scorer),
		Sources:        req.Sources,
		Target:         req.Target,
		Status:         database.RunDone,
		Fetched:        r.Counts.Fetched,
		PassedQuality:  r.Counts.PassedQuality,
		PassedKeyword:  r.Counts.PassedKeyword,
		PassedDomain:   r.Counts.PassedDomain,
		CoreCount:      r.Counts.Core,
		RelatedCount:   r.Counts.Related,
		RecoveredCount: r.Counts.Recovered,
		ClusterCount:   len(r.Clusters),
		Boosted:        r.Boosted,
	}}

	for _, s := range r.Signals {
		rw.signals = append(rw.signals, signalRow(s))
	}
	for _, c := range r.Clusters {
		ids := make([]string, len(c.Members))
		for i, m := range c.Members {
			ids[i] = m.Item.ID
		}
		rw.clusters = append(rw.clusters, database.RunCluster{
			ClusterID: c.ID,
			Label:     c.Label,
			Size:      len(c.Members),
			Cohesion:  c.Cohesion,
			MemberIDs: ids,
			Excerpts:  c.Excerpts,
		})
	}

	records := r.Ledger.Records()
	tally := make(map[[2]string]int)
	for _, d := range records {
		rw.decisions = append(rw.decisions, database.RunDecision{
			ItemID: d.ItemID, Stage: string(d.Stage), Verdict: string(d.Verdict), Tier: string(d.Tier), Reason: d.Reason,
		})
		tally[[2]string{string(d.Stage), string(d.Verdict)}]++
	}
	for k, n := range tally {
		rw.counts = append(rw.counts, database.StageCount{Stage: k[0], Verdict: k[1], Count: n})
	}
	sort.Slice(rw.counts, func(i, j int) bool {
		if rw.counts[i].Stage != rw.counts[j].Stage {
			return stageOrder(rw.counts[i].Stage) < stageOrder(rw.counts[j].Stage)
		}
		return rw.counts[i].Verdict < rw.counts[j].Verdict
	})

	md := rw.markdown()
	rw.run.ReportMarkdown = &md
	return rw
}

func signalRow(s content.Signal) database.RunSignal {
	created := ""
	if !s.Item.CreatedAt.IsZero() {
		created = s.Item.CreatedAt.UTC().Format(time.RFC3339)
	}
	return database.RunSignal{
		ItemID:     s.Item.ID,
		Kind:       string(s.Item.Kind),
		Container:  s.Item.Container,
		Title:      s.Item.Title,
		Excerpt:    s.Item.Excerpt(signalExcerptLength),
		Permalink:  s.Item.Permalink,
		Tier:       string(s.Tier),
		Recovered:  s.Recovered,
		Weight:     s.Weight,
		Similarity: s.Similarity,
		CreatedAt:  created,
	}
}

func stageOrder(stage string) int {
	for i, s := range []content.Stage{
		content.StageQuality, content.StageKeyword, content.StageDomain, content.StageProblem, content.StageSimilarity,
	} {
		if string(s) == stage {
			return i
		}
	}
	return 99
}
