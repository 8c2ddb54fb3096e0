package pipeline

import (
	"log"
	"time"

	"github.com/TobiSchelling/painscout/internal/archive"
	"github.com/TobiSchelling/painscout/internal/cluster"
	"github.com/TobiSchelling/painscout/internal/collect"
	"github.com/TobiSchelling/painscout/internal/config"
	"github.com/TobiSchelling/painscout/internal/database"
	"github.com/TobiSchelling/painscout/internal/embedding"
	"github.com/TobiSchelling/painscout/internal/focus"
	"github.com/TobiSchelling/painscout/internal/llm"
	"github.com/TobiSchelling/painscout/internal/quality"
	"github.com/TobiSchelling/painscout/internal/retry"
	"github.com/TobiSchelling/painscout/internal/similarity"
	"github.com/TobiSchelling/painscout/internal/triage"
)

// LLMRetryPolicy is the retry policy for generation calls, tuned by the llm section.
func LLMRetryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.LLM.MaxAttempts,
		BaseDelay:   cfg.LLM.BackoffBase,
		MaxDelay:    cfg.LLM.BackoffMax,
	}
}

// New creates a pipeline from configuration. db may be nil, in which case
// embeddings are cached in memory only and runs are not stored.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	opts := LLMOptions(cfg)
	provider := llm.WithRetry(llm.CreateProvider(opts), LLMRetryPolicy(cfg))

	var cache embedding.Cache = embedding.NewMemoryCache()
	if db != nil {
		cache = db.EmbeddingCache()
	}
	embedder := llm.CreateEmbedder(cfg.Embedding.Provider, cfg.Embedding.Model, opts)
	embeddings := embedding.NewService(embedder, cache, cfg.Embedding.Provider+"/"+cfg.Embedding.Model)

	var closers []func() error
	var persistent focus.Cache
	if cfg.Cache.PersistFocus {
		bc, err := focus.OpenBoltCache(cfg.FocusCachePath(), cfg.Cache.FocusTTL)
		if err != nil {
			log.Printf("Focus cache unavailable, using memory only: %v", err)
		} else {
			persistent = bc
			closers = append(closers, bc.Close)
		}
	}

	p := NewWithDeps(Deps{
		Source:     NewSource(cfg),
		Provider:   provider,
		Embeddings: embeddings,
		Focus:      focus.NewExtractor(provider, focus.NewMemoryCache(cfg.Cache.FocusTTL, persistent)),
		DB:         db,
	}, StageOptions(cfg))
	p.closers = closers
	return p
}

// NewSource creates the archive source the configuration names.
func NewSource(cfg *config.Config) archive.Source {
	a := cfg.Archive
	if a.Kind == "feed" {
		return archive.NewFeedSource(a.PostsFeedURL, a.CommentsFeedURL, a.RequestsPerSecond)
	}
	return archive.NewClient(archive.ClientConfig{
		BaseURL:           a.BaseURL,
		RequestsPerSecond: a.RequestsPerSecond,
		Timeout:           a.Timeout,
		Retry: retry.Policy{
			MaxAttempts: a.MaxAttempts,
			BaseDelay:   a.BackoffBase,
			MaxDelay:    a.BackoffMax,
		},
	})
}

// LLMOptions maps the llm section onto provider options.
func LLMOptions(cfg *config.Config) llm.Options {
	return llm.Options{
		Provider:        cfg.LLM.Provider,
		Model:           cfg.LLM.Model,
		OllamaURL:       cfg.LLM.OllamaURL,
		OpenAIModel:     cfg.LLM.OpenAIModel,
		OpenAIKeyEnv:    cfg.LLM.OpenAIKeyEnv,
		OpenAIURL:       cfg.LLM.OpenAIURL,
		AnthropicModel:  cfg.LLM.AnthropicModel,
		AnthropicKeyEnv: cfg.LLM.AnthropicKeyEnv,
	}
}

// StageOptions maps the filter, similarity and cluster sections onto stage settings.
func StageOptions(cfg *config.Config) Options {
	policy := triage.Policy{
		OnParseFailure: action(cfg.Filters.OnParseFailure),
		OnAPIFailure:   action(cfg.Filters.OnAPIFailure),
	}
	return Options{
		Collect: collect.Config{
			SampleSize:      cfg.Archive.SampleSize,
			Lookback:        time.Duration(cfg.Archive.LookbackDays) * 24 * time.Hour,
			IncludeComments: cfg.Archive.IncludeComments,
			CommentShare:    cfg.Archive.CommentShare,
		},
		Quality: quality.Config{
			MinLength:       cfg.Filters.MinLength,
			MinTitleLength:  cfg.Filters.MinTitleLength,
			MaxForeignRatio: cfg.Filters.MaxForeignRatio,
		},
		Domain:  triage.Config{BatchSize: cfg.Filters.DomainBatchSize, Concurrency: cfg.Filters.Concurrency, Policy: policy},
		Problem: triage.Config{BatchSize: cfg.Filters.ProblemBatchSize, Concurrency: cfg.Filters.Concurrency, Policy: policy},
		Similarity: similarity.Config{
			High:          cfg.Similarity.High,
			Medium:        cfg.Similarity.Medium,
			BoostedMedium: cfg.Similarity.BoostedMedium,
			BoostBonus:    cfg.Similarity.BoostBonus,
			MinSignals:    cfg.Similarity.MinSignals,
			CoverageBoost: cfg.Similarity.CoverageBoost,
		},
		Cluster: cluster.Config{
			Threshold:   cfg.Cluster.Threshold,
			MinSize:     cfg.Cluster.MinSize,
			MaxClusters: cfg.Cluster.MaxClusters,
			Excerpts:    cfg.Cluster.Excerpts,
		},
		Target: cfg.Archive.DefaultTarget,
	}
}

func action(s string) triage.Action {
	if s == "reject" {
		return triage.Reject
	}
	return triage.PassThrough
}
