// Package report renders a research run as markdown.
package report

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/painscout/internal/database"
)

// Input is everything a report is built from. The same rows are stored with the
// run, so a report rendered later from the database matches the original.
type Input struct {
	Run      *database.Run
	Counts   []database.StageCount
	Signals  []database.RunSignal
	Clusters []database.RunCluster
}

// Markdown renders the run deterministically: funnel, themes, then the
// unclustered signals.
func Markdown(in Input) string {
	r := in.Run
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Hypothesis)
	fmt.Fprintf(&b, "- **Sources:** %s\n", sourceList(r.Sources))
	fmt.Fprintf(&b, "- **Mode:** %s, **scorer:** %s", r.Mode, r.Scorer)
	if r.Boosted {
		b.WriteString(" (coverage boost applied)")
	}
	b.WriteString("\n\n")

	b.WriteString("## Funnel\n\n")
	b.WriteString("| Stage | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Fetched | %d |\n", r.Fetched)
	fmt.Fprintf(&b, "| Passed quality | %d |\n", r.PassedQuality)
	fmt.Fprintf(&b, "| Passed keywords | %d |\n", r.PassedKeyword)
	fmt.Fprintf(&b, "| Passed domain | %d |\n", r.PassedDomain)
	fmt.Fprintf(&b, "| Core | %d |\n", r.CoreCount)
	fmt.Fprintf(&b, "| Related | %d |\n", r.RelatedCount)
	fmt.Fprintf(&b, "| Recovered from titles | %d |\n", r.RecoveredCount)
	b.WriteString("\n")

	if len(in.Counts) > 0 {
		b.WriteString("<details><summary>Decisions by stage</summary>\n\n")
		b.WriteString("| Stage | Verdict | Items |\n|---|---|---|\n")
		for _, c := range in.Counts {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", c.Stage, c.Verdict, c.Count)
		}
		b.WriteString("\n</details>\n\n")
	}

	if len(in.Signals) == 0 {
		b.WriteString("No signals found for this hypothesis.\n")
		return b.String()
	}

	byID := make(map[string]database.RunSignal, len(in.Signals))
	for _, s := range in.Signals {
		byID[s.ItemID] = s
	}
	clustered := make(map[string]bool)

	var sections []string
	for i, c := range in.Clusters {
		var sb strings.Builder
		fmt.Fprintf(&sb, "## %d. %s\n\n", i+1, c.Label)
		fmt.Fprintf(&sb, "%d signals, cohesion %.2f\n\n", c.Size, c.Cohesion)
		for _, e := range c.Excerpts {
			fmt.Fprintf(&sb, "> %s\n\n", e)
		}
		sb.WriteString("**Signals:**\n")
		for _, id := range c.MemberIDs {
			clustered[id] = true
			if s, ok := byID[id]; ok {
				sb.WriteString(signalLine(s))
			}
		}
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}

	var rest []string
	for _, s := range in.Signals {
		if !clustered[s.ItemID] {
			rest = append(rest, strings.TrimRight(signalLine(s), "\n"))
		}
	}
	if len(rest) > 0 {
		sections = append(sections, "## Unclustered signals\n\n"+strings.Join(rest, "\n"))
	}

	b.WriteString(strings.Join(sections, "\n\n---\n\n"))
	b.WriteString("\n")
	return b.String()
}

func signalLine(s database.RunSignal) string {
	title := s.Title
	if title == "" {
		title = s.Excerpt
	}
	title = strings.ReplaceAll(title, "]", ")")
	title = strings.ReplaceAll(title, "[", "(")

	var tags []string
	tags = append(tags, s.Tier)
	if s.Recovered {
		tags = append(tags, "title only")
	}
	if s.Similarity > 0 {
		tags = append(tags, fmt.Sprintf("sim %.2f", s.Similarity))
	}

	line := title
	if s.Permalink != "" {
		line = fmt.Sprintf("[%s](%s)", title, s.Permalink)
	}
	return fmt.Sprintf("- %s (r/%s, %s)\n", line, s.Container, strings.Join(tags, ", "))
}

func sourceList(sources []string) string {
	if len(sources) == 0 {
		return "none"
	}
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = "r/" + s
	}
	return strings.Join(out, ", ")
}
