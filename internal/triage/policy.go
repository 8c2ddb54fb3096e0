// Package triage runs the LLM classifiers: the coarse domain gate, the tiered
// problem-match classifier and the title-only recovery path.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/llm"
	"github.com/TobiSchelling/painscout/internal/metrics"
)

// Action is what a stage does with a batch it could not classify.
type Action int

const (
	// PassThrough lets the whole batch through (fail open).
	PassThrough Action = iota
	// Reject drops the whole batch.
	Reject
)

// Policy makes the failure handling of a classifier stage explicit.
type Policy struct {
	OnParseFailure Action
	OnAPIFailure   Action // applied after the provider's own retries are exhausted
}

// DefaultPolicy fails open on every failure: a lost signal cannot be recovered
// downstream, a false positive can.
var DefaultPolicy = Policy{OnParseFailure: PassThrough, OnAPIFailure: PassThrough}

// ErrNoProvider is recorded on batches when no LLM is configured.
var ErrNoProvider = errors.New("no LLM provider")

// unknown pads short responses and fills failed-open batches.
const unknown = '?'

// BatchResult is the outcome of one classifier call.
type BatchResult struct {
	Start      int    // index of the first item in the batch
	Letters    string // one per item; '?' where the stage decided by policy
	Err        error
	FailedOpen bool
}

// Config sizes the batches of a stage.
type Config struct {
	BatchSize   int
	Concurrency int
	Policy      Policy
}

type runner struct {
	provider llm.Provider
	stage    content.Stage
	cfg      Config
}

// run classifies n items in batches, preserving order. build renders the prompt
// for items [start, end). Failures are folded into the results per policy.
func (r runner) run(ctx context.Context, n int, allowed string, build func(start, end int) string) ([]BatchResult, error) {
	size := r.cfg.BatchSize
	if size <= 0 {
		size = n
	}
	var results []BatchResult
	for start := 0; start < n; start += size {
		results = append(results, BatchResult{Start: start})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.Concurrency, 1))
	for i := range results {
		i := i
		start := results[i].Start
		end := min(start+size, n)
		g.Go(func() error {
			results[i] = r.classify(gctx, start, end, allowed, build(start, end))
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r runner) classify(ctx context.Context, start, end int, allowed, prompt string) BatchResult {
	count := end - start
	res := BatchResult{Start: start}

	if r.provider == nil {
		return r.fail(res, count, "unavailable", r.cfg.Policy.OnAPIFailure, ErrNoProvider)
	}
	resp, err := r.provider.Generate(ctx, prompt, count*4+32)
	if err != nil {
		return r.fail(res, count, "api", r.cfg.Policy.OnAPIFailure, err)
	}
	letters, err := llm.ParseLetters(resp, count, allowed, unknown)
	if err != nil {
		return r.fail(res, count, "parse", r.cfg.Policy.OnParseFailure, fmt.Errorf("%w: %q", err, truncate(resp, 80)))
	}
	res.Letters = letters
	return res
}

func (r runner) fail(res BatchResult, count int, cause string, action Action, err error) BatchResult {
	res.Err = err
	if action == PassThrough {
		res.FailedOpen = true
		res.Letters = strings.Repeat(string(rune(unknown)), count)
		metrics.FailOpenBatches.WithLabelValues(string(r.stage), cause).Inc()
		log.Printf("%s batch at %d failed (%s), passing %d items through: %v", r.stage, res.Start, cause, count, err)
	} else {
		res.Letters = strings.Repeat("N", count)
		log.Printf("%s batch at %d failed (%s), rejecting %d items: %v", r.stage, res.Start, cause, count, err)
	}
	return res
}

// letterAt returns the letter for item i and the batch that produced it.
func letterAt(batches []BatchResult, i int) (byte, *BatchResult) {
	for b := len(batches) - 1; b >= 0; b-- {
		if i >= batches[b].Start {
			return batches[b].Letters[i-batches[b].Start], &batches[b]
		}
	}
	return unknown, nil
}

func record(d content.Decision) content.Decision {
	metrics.StageDecisions.WithLabelValues(string(d.Stage), string(d.Verdict)).Inc()
	return d
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
