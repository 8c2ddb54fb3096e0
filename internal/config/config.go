package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/painscout/internal/hypothesis"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Archive    Archive    `yaml:"archive"`
	LLM        LLM        `yaml:"llm"`
	Embedding  Embedding  `yaml:"embedding"`
	Filters    Filters    `yaml:"filters"`
	Similarity Similarity `yaml:"similarity"`
	Cluster    Cluster    `yaml:"cluster"`
	Cache      Cache      `yaml:"cache"`
	Schedule   Schedule   `yaml:"schedule"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

// Archive configures where posts come from and how they are sampled.
type Archive struct {
	Kind              string        `yaml:"kind"` // "arctic" or "feed"
	BaseURL           string        `yaml:"base_url"`
	PostsFeedURL      string        `yaml:"posts_feed_url"` // %s is replaced by the source name
	CommentsFeedURL   string        `yaml:"comments_feed_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	SampleSize        int           `yaml:"sample_size"`
	LookbackDays      int           `yaml:"lookback_days"`
	IncludeComments   bool          `yaml:"include_comments"`
	CommentShare      float64       `yaml:"comment_share"`
	DefaultTarget     int           `yaml:"default_target"`
	DefaultSources    []string      `yaml:"default_sources"`
}

type LLM struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	OllamaURL       string        `yaml:"ollama_url"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIKeyEnv    string        `yaml:"openai_key_env"`
	OpenAIURL       string        `yaml:"openai_url"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	AnthropicKeyEnv string        `yaml:"anthropic_key_env"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BackoffMax      time.Duration `yaml:"backoff_max"`
}

type Embedding struct {
	Provider string `yaml:"provider"` // "ollama" or "openai"
	Model    string `yaml:"model"`
}

// Filters configures the gates and classifiers.
type Filters struct {
	MinLength        int     `yaml:"min_length"`
	MinTitleLength   int     `yaml:"min_title_length"`
	MaxForeignRatio  float64 `yaml:"max_foreign_ratio"`
	DomainBatchSize  int     `yaml:"domain_batch_size"`
	ProblemBatchSize int     `yaml:"problem_batch_size"`
	Concurrency      int     `yaml:"concurrency"`
	OnParseFailure   string  `yaml:"on_parse_failure"` // "pass" or "reject"
	OnAPIFailure     string  `yaml:"on_api_failure"`
}

type Similarity struct {
	Scorer        string  `yaml:"scorer"` // classifier, embedding or hybrid
	High          float64 `yaml:"high"`
	Medium        float64 `yaml:"medium"`
	BoostedMedium float64 `yaml:"boosted_medium"`
	BoostBonus    float64 `yaml:"boost_bonus"`
	MinSignals    int     `yaml:"min_signals"`
	CoverageBoost bool    `yaml:"coverage_boost"`
}

type Cluster struct {
	Threshold   float64 `yaml:"threshold"`
	MinSize     int     `yaml:"min_size"`
	MaxClusters int     `yaml:"max_clusters"`
	Excerpts    int     `yaml:"excerpts"`
}

type Cache struct {
	FocusTTL        time.Duration `yaml:"focus_ttl"`
	EmbeddingMaxAge time.Duration `yaml:"embedding_max_age"`
	PersistFocus    bool          `yaml:"persist_focus"`
}

type Schedule struct {
	Timezone string `yaml:"timezone"`
	Jobs     []Job  `yaml:"jobs"`
}

// Job is a recurring research run.
type Job struct {
	Name       string                `yaml:"name"`
	Cron       string                `yaml:"cron"`
	Hypothesis hypothesis.Hypothesis `yaml:"hypothesis"`
	Sources    []string              `yaml:"sources"`
	Target     int                   `yaml:"target"`
	Scorer     string                `yaml:"scorer"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Logging struct {
	Verbose bool `yaml:"verbose"`
}

// ConfigDir returns the XDG config directory for painscout.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "painscout")
}

// DataDir returns the XDG data directory for painscout.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "painscout")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/painscout/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'painscout init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Archive: Archive{
			Kind:              "arctic",
			BaseURL:           "https://arctic-shift.photon-reddit.com",
			RequestsPerSecond: 1,
			Timeout:           30 * time.Second,
			MaxAttempts:       3,
			BackoffBase:       2 * time.Second,
			BackoffMax:        30 * time.Second,
			SampleSize:        100,
			LookbackDays:      365,
			CommentShare:      0.5,
			DefaultTarget:     300,
		},
		LLM: LLM{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			OpenAIKeyEnv:    "OPENAI_API_KEY",
			AnthropicModel:  "claude-3-5-haiku-latest",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			MaxAttempts:     3,
			BackoffBase:     time.Second,
			BackoffMax:      20 * time.Second,
		},
		Embedding: Embedding{Provider: "ollama", Model: "nomic-embed-text"},
		Filters: Filters{
			MinLength:        25,
			MinTitleLength:   30,
			MaxForeignRatio:  0.30,
			DomainBatchSize:  25,
			ProblemBatchSize: 15,
			Concurrency:      1,
			OnParseFailure:   "pass",
			OnAPIFailure:     "pass",
		},
		Similarity: Similarity{
			Scorer:        "classifier",
			High:          0.50,
			Medium:        0.35,
			BoostedMedium: 0.30,
			BoostBonus:    0.05,
			MinSignals:    10,
		},
		Cluster: Cluster{Threshold: 0.70, MinSize: 2, MaxClusters: 8, Excerpts: 3},
		Cache: Cache{
			FocusTTL:        168 * time.Hour,
			EmbeddingMaxAge: 90 * 24 * time.Hour,
			PersistFocus:    true,
		},
		Schedule: Schedule{Timezone: "Local"},
		Server:   Server{Host: "127.0.0.1", Port: 8000},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Archive.Kind {
	case "arctic", "feed":
	default:
		return fmt.Errorf("archive.kind must be arctic or feed, got %q", c.Archive.Kind)
	}
	if c.Archive.Kind == "feed" && c.Archive.PostsFeedURL == "" {
		return fmt.Errorf("archive.posts_feed_url is required for feed archives")
	}
	switch c.Similarity.Scorer {
	case "classifier", "embedding", "hybrid":
	default:
		return fmt.Errorf("similarity.scorer must be classifier, embedding or hybrid, got %q", c.Similarity.Scorer)
	}
	for _, p := range []string{c.Filters.OnParseFailure, c.Filters.OnAPIFailure} {
		if p != "pass" && p != "reject" {
			return fmt.Errorf("filters failure policy must be pass or reject, got %q", p)
		}
	}
	for _, j := range c.Schedule.Jobs {
		if j.Name == "" || j.Cron == "" || j.Hypothesis.IsEmpty() {
			return fmt.Errorf("schedule job %q needs name, cron and hypothesis", j.Name)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "painscout.db")
}

// FocusCachePath returns the bbolt focus cache location.
func (c *Config) FocusCachePath() string {
	return filepath.Join(c.GetDataDir(), "focus.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
