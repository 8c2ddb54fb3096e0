// Package scheduler runs research jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TobiSchelling/painscout/internal/config"
	"github.com/TobiSchelling/painscout/internal/pipeline"
)

// JobTimeout bounds a single scheduled run.
const JobTimeout = 30 * time.Minute

// Job is a scheduled task.
type Job func(ctx context.Context) error

// Runner executes research requests. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
}

type entry struct {
	id       cron.EntryID
	schedule string
	job      Job
}

// Scheduler manages recurring research runs.
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]entry
	timezone *time.Location
}

// New creates a scheduler in the given timezone. A run still in progress when
// its next tick fires is skipped.
func New(timezone string) (*Scheduler, error) {
	if timezone == "" {
		timezone = "Local"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	return &Scheduler{cron: c, jobs: make(map[string]entry), timezone: loc}, nil
}

// AddJob adds a job with a cron schedule such as "0 6 * * 1" or "@daily".
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}
	id, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
		defer cancel()
		s.execute(ctx, name, job)
	})
	if err != nil {
		return fmt.Errorf("scheduling job %s: %w", name, err)
	}

	s.jobs[name] = entry{id: id, schedule: schedule, job: job}
	log.Printf("[scheduler] Added job: %s (schedule: %s)", name, schedule)
	return nil
}

func (s *Scheduler) execute(ctx context.Context, name string, job Job) error {
	log.Printf("[scheduler] Starting job: %s", name)
	start := time.Now()
	if err := job(ctx); err != nil {
		log.Printf("[scheduler] Job %s failed: %v", name, err)
		return err
	}
	log.Printf("[scheduler] Job %s completed in %v", name, time.Since(start).Round(time.Second))
	return nil
}

// AddResearchJobs schedules one pipeline run per configured job.
func (s *Scheduler) AddResearchJobs(jobs []config.Job, runner Runner) error {
	for _, j := range jobs {
		req, err := Request(j)
		if err != nil {
			return err
		}
		if err := s.AddJob(j.Name, j.Cron, researchJob(runner, req)); err != nil {
			return err
		}
	}
	return nil
}

// Request converts a configured job into a saved pipeline request.
func Request(j config.Job) (pipeline.Request, error) {
	scorer, err := pipeline.ParseScorer(j.Scorer)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("job %s: %w", j.Name, err)
	}
	if len(j.Sources) == 0 {
		return pipeline.Request{}, fmt.Errorf("job %s: no sources", j.Name)
	}
	return pipeline.Request{
		Hypothesis: j.Hypothesis,
		Sources:    j.Sources,
		Target:     j.Target,
		Scorer:     scorer,
		Save:       true,
	}, nil
}

func researchJob(runner Runner, req pipeline.Request) Job {
	return func(ctx context.Context) error {
		r, err := runner.Run(ctx, req)
		if err != nil {
			return err
		}
		log.Printf("[scheduler] Run %s: %d core, %d related, %d themes",
			r.RunID, r.Counts.Core, r.Counts.Related, len(r.Clusters))
		return nil
	}
}

// RemoveJob removes a scheduled job.
func (s *Scheduler) RemoveJob(name string) {
	if e, ok := s.jobs[name]; ok {
		s.cron.Remove(e.id)
		delete(s.jobs, name)
		log.Printf("[scheduler] Removed job: %s", name)
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	log.Println("[scheduler] Starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	log.Println("[scheduler] Stopping scheduler")
	return s.cron.Stop()
}

// RunNow executes a scheduled job immediately.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("no job named %s", name)
	}
	ctx, cancel := context.WithTimeout(ctx, JobTimeout)
	defer cancel()
	return s.execute(ctx, name, e.job)
}

// JobInfo contains information about a scheduled job.
type JobInfo struct {
	Name     string
	Schedule string
	NextRun  time.Time
	LastRun  time.Time
}

// ListJobs returns the scheduled jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	infos := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		ce := s.cron.Entry(e.id)
		infos = append(infos, JobInfo{Name: name, Schedule: e.schedule, NextRun: ce.Next, LastRun: ce.Prev})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
