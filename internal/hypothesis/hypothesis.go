// Package hypothesis models the research question and the heuristics that
// decide how the problem-match classifier should treat it.
package hypothesis

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hypothesis is the research question, free-text and/or structured.
type Hypothesis struct {
	Text            string   `json:"text" yaml:"text"`
	Audience        string   `json:"audience,omitempty" yaml:"audience"`
	Problem         string   `json:"problem,omitempty" yaml:"problem"`
	ProblemLanguage []string `json:"problem_language,omitempty" yaml:"problem_language"`
	ExcludeTopics   []string `json:"exclude_topics,omitempty" yaml:"exclude_topics"`
}

// Statement returns the free text, or a sentence built from the structured form.
func (h Hypothesis) Statement() string {
	if t := strings.TrimSpace(h.Text); t != "" {
		return t
	}
	audience := strings.TrimSpace(h.Audience)
	problem := strings.TrimSpace(h.Problem)
	switch {
	case audience != "" && problem != "":
		return audience + " struggling with " + problem
	case problem != "":
		return problem
	}
	return audience
}

// Normalized returns the trimmed, case-folded, whitespace-collapsed statement.
func (h Hypothesis) Normalized() string {
	return Normalize(h.Statement())
}

// Key returns the content address of the hypothesis.
func (h Hypothesis) Key() string {
	sum := sha256.Sum256([]byte(h.Normalized()))
	return hex.EncodeToString(sum[:])
}

// IsEmpty reports whether there is nothing to research.
func (h Hypothesis) IsEmpty() bool {
	return h.Normalized() == ""
}

// Normalize lowercases s and collapses runs of whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
