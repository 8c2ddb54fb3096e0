package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/painscout/internal/collect"
	"github.com/TobiSchelling/painscout/internal/config"
	"github.com/TobiSchelling/painscout/internal/database"
	"github.com/TobiSchelling/painscout/internal/focus"
	"github.com/TobiSchelling/painscout/internal/hypothesis"
	"github.com/TobiSchelling/painscout/internal/pipeline"
	"github.com/TobiSchelling/painscout/internal/report"
	"github.com/TobiSchelling/painscout/internal/scheduler"
	"github.com/TobiSchelling/painscout/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "painscout",
	Short:   "Find evidence for problem hypotheses in forum archives",
	Long:    "painscout searches forum archives for people describing a problem, filters and scores the evidence, and groups it into themes.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setLogFlags(verbose)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		setLogFlags(verbose || cfg.Logging.Verbose)
		return nil
	},
}

func setLogFlags(verbose bool) {
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(watchCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("painscout", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/painscout/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the archive, LLM provider and scheduled jobs.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Runs:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Failed: %d\n", stats.FailedRuns)
		if stats.LastRunAt != nil {
			fmt.Printf("  Last run: %s\n", *stats.LastRunAt)
		}
		fmt.Printf("  Stored signals: %d\n", stats.StoredSignals)
		fmt.Println("\nEmbedding cache:")
		fmt.Printf("  Vectors: %d\n", stats.CachedEmbeddings)
		fmt.Printf("  Models: %d\n", stats.EmbeddingModels)
		fmt.Println("\nProviders:")
		fmt.Printf("  Archive: %s\n", cfg.Archive.Kind)
		fmt.Printf("  LLM: %s\n", cfg.LLM.Provider)
		fmt.Printf("  Embeddings: %s/%s\n", cfg.Embedding.Provider, cfg.Embedding.Model)
		fmt.Printf("  Scheduled jobs: %d\n", len(cfg.Schedule.Jobs))
		return nil
	},
}

// --- research command ---

var (
	audience     string
	problem      string
	language     []string
	exclude      []string
	sources      []string
	target       int
	scorerName   string
	since        string
	until        string
	hypothesisIn string
	outputPath   string
	dryRun       bool
	noSave       bool
)

// hypothesisFile is the YAML accepted by research --file.
type hypothesisFile struct {
	Hypothesis hypothesis.Hypothesis `yaml:"hypothesis"`
	Sources    []string              `yaml:"sources"`
}

var researchCmd = &cobra.Command{
	Use:   "research [hypothesis]",
	Short: "Search the archive for evidence of a problem hypothesis",
	Example: `  painscout research "Freelancers struggling to get paid on time" -s freelance -s smallbusiness
  painscout research --file hypothesis.yaml --scorer hybrid`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(args)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		defer pipe.Close()

		if dryRun {
			printSteps(pipe.DryRun(req).Steps)
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, err := pipe.Run(ctx, req)
		if r != nil {
			printSteps(r.Steps)
		}
		if err != nil {
			return err
		}

		fmt.Printf("\nFound %d core and %d related signals (%d recovered from titles) in %d themes.\n",
			r.Counts.Core, r.Counts.Related, r.Counts.Recovered, len(r.Clusters))

		if outputPath != "" {
			if err := os.WriteFile(outputPath, []byte(r.Markdown), 0o644); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			fmt.Printf("Report written to %s\n", outputPath)
		}
		if req.Save {
			fmt.Printf("Run %s saved. View it with 'painscout runs show %s' or 'painscout serve'.\n", r.RunID, r.RunID)
		}
		return nil
	},
}

func init() {
	f := researchCmd.Flags()
	f.StringVar(&audience, "audience", "", "Who has the problem")
	f.StringVar(&problem, "problem", "", "The problem, if not part of the hypothesis text")
	f.StringSliceVar(&language, "language", nil, "Words sufferers use for the problem (repeatable)")
	f.StringSliceVar(&exclude, "exclude", nil, "Topics to exclude (repeatable)")
	f.StringSliceVarP(&sources, "sources", "s", nil, "Subreddits to search (repeatable)")
	f.IntVarP(&target, "target", "n", 0, "Total items to fetch (default from config)")
	f.StringVar(&scorerName, "scorer", "", "classifier, embedding or hybrid (default from config)")
	f.StringVar(&since, "since", "", "Only items created on or after this date (YYYY-MM-DD)")
	f.StringVar(&until, "until", "", "Only items created before this date (YYYY-MM-DD)")
	f.StringVarP(&hypothesisIn, "file", "f", "", "Read the hypothesis and sources from a YAML file")
	f.StringVarP(&outputPath, "output", "o", "", "Also write the markdown report to this file")
	f.BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	f.BoolVar(&noSave, "no-save", false, "Do not store the run in the database")
}

func buildRequest(args []string) (pipeline.Request, error) {
	h := hypothesis.Hypothesis{
		Text:            strings.Join(args, " "),
		Audience:        audience,
		Problem:         problem,
		ProblemLanguage: language,
		ExcludeTopics:   exclude,
	}
	srcs := sources

	if hypothesisIn != "" {
		data, err := os.ReadFile(hypothesisIn)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("reading hypothesis file: %w", err)
		}
		var hf hypothesisFile
		if err := yaml.Unmarshal(data, &hf); err != nil {
			return pipeline.Request{}, fmt.Errorf("parsing hypothesis file: %w", err)
		}
		if h.IsEmpty() {
			h = hf.Hypothesis
		}
		if len(srcs) == 0 {
			srcs = hf.Sources
		}
	}

	if h.IsEmpty() {
		return pipeline.Request{}, pipeline.ErrNoHypothesis
	}
	if len(srcs) == 0 {
		return pipeline.Request{}, fmt.Errorf("no sources given; use --sources or a hypothesis file")
	}

	name := scorerName
	if name == "" {
		name = cfg.Similarity.Scorer
	}
	scorer, err := pipeline.ParseScorer(name)
	if err != nil {
		return pipeline.Request{}, err
	}

	tr, err := parseRange(since, until)
	if err != nil {
		return pipeline.Request{}, err
	}

	for i, s := range srcs {
		srcs[i] = strings.TrimPrefix(strings.TrimSpace(s), "r/")
	}
	return pipeline.Request{
		Hypothesis: h,
		Sources:    srcs,
		Target:     target,
		TimeRange:  tr,
		Scorer:     scorer,
		Save:       !noSave,
	}, nil
}

func parseRange(since, until string) (*collect.TimeRange, error) {
	if since == "" && until == "" {
		return nil, nil
	}
	var tr collect.TimeRange
	if since != "" {
		t, err := time.Parse(time.DateOnly, since)
		if err != nil {
			return nil, fmt.Errorf("invalid --since %q: %w", since, err)
		}
		tr.Start = t
	}
	if until != "" {
		t, err := time.Parse(time.DateOnly, until)
		if err != nil {
			return nil, fmt.Errorf("invalid --until %q: %w", until, err)
		}
		tr.End = t
	}
	if !tr.Start.IsZero() && !tr.End.IsZero() && !tr.End.After(tr.Start) {
		return nil, fmt.Errorf("--until must be after --since")
	}
	return &tr, nil
}

func printSteps(steps []pipeline.StepResult) {
	for i, step := range steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- runs command ---

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage stored research runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs yet. Start one with: painscout research")
			return nil
		}

		for _, r := range runs {
			started := ""
			if r.StartedAt != nil {
				started = *r.StartedAt
			}
			fmt.Printf("  %s  %-7s %s  core %d, related %d, themes %d\n", r.ID, r.Status, started, r.CoreCount, r.RelatedCount, r.ClusterCount)
			hyp := r.Hypothesis
			if len(hyp) > 70 {
				hyp = hyp[:70] + "..."
			}
			fmt.Printf("        %s\n", hyp)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print the report of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", args[0])
		}

		switch {
		case run.Status == database.RunFailed:
			msg := ""
			if run.Error != nil {
				msg = *run.Error
			}
			fmt.Printf("Run %s failed: %s\n", run.ID, msg)
		case run.ReportMarkdown != nil:
			fmt.Println(*run.ReportMarkdown)
		default:
			signals, err := db.GetRunSignals(run.ID)
			if err != nil {
				return err
			}
			clusters, err := db.GetRunClusters(run.ID)
			if err != nil {
				return err
			}
			counts, err := db.GetRunStageCounts(run.ID)
			if err != nil {
				return err
			}
			fmt.Println(report.Markdown(report.Input{Run: run, Counts: counts, Signals: signals, Clusters: clusters}))
		}
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a run and its signals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", args[0])
		}
		if err := db.DeleteRun(run.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted run %s: %s\n", run.ID, run.Hypothesis)
		return nil
	},
}

func init() {
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://%s:%d\n", cfg.Server.Host, port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, cfg.Server.Host, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- cache command ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the embedding and focus caches",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop cached embeddings and focus entries past their age limit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.PruneEmbeddings(cfg.Cache.EmbeddingMaxAge)
		if err != nil {
			return fmt.Errorf("pruning embeddings: %w", err)
		}
		fmt.Printf("Pruned %d embeddings older than %s\n", n, cfg.Cache.EmbeddingMaxAge)

		if !cfg.Cache.PersistFocus {
			return nil
		}
		fc, err := focus.OpenBoltCache(cfg.FocusCachePath(), cfg.Cache.FocusTTL)
		if err != nil {
			return fmt.Errorf("opening focus cache: %w", err)
		}
		defer fc.Close()
		pruned, err := fc.Prune()
		if err != nil {
			return fmt.Errorf("pruning focus cache: %w", err)
		}
		fmt.Printf("Pruned %d focus entries, %d remain\n", pruned, fc.Len())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
}

// --- watch command ---

var runJobNow string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the scheduled research jobs from the config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Schedule.Jobs) == 0 {
			return fmt.Errorf("no jobs under schedule.jobs in the config")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		defer pipe.Close()

		sched, err := scheduler.New(cfg.Schedule.Timezone)
		if err != nil {
			return err
		}
		if err := sched.AddResearchJobs(cfg.Schedule.Jobs, pipe); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if runJobNow != "" {
			if err := sched.RunNow(ctx, runJobNow); err != nil {
				return err
			}
		}

		sched.Start()
		for _, j := range sched.ListJobs() {
			fmt.Printf("  %s (%s)\n", j.Name, j.Schedule)
		}
		fmt.Println("Watching. Press Ctrl+C to stop")

		<-ctx.Done()
		<-sched.Stop().Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&runJobNow, "run-now", "", "Run the named job once before scheduling")
}

func openDB() (*database.DB, error) {
	if err := os.MkdirAll(cfg.GetDataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath())
}
