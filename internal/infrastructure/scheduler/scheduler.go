// Package scheduler runs the recomputation jobs on their schedules. A job
// never overlaps itself: a tick that finds the previous run still going is
// skipped and logged.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping or the job
	// timeout elapses.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Summarizer is implemented by jobs that report counters of their last run.
type Summarizer interface {
	Summary() map[string]any
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	String() string
}

// Metrics records finished runs.
type Metrics interface {
	JobFinished(job string, duration time.Duration, err error)
}

// JobResult contains the result of a job execution.
type JobResult struct {
	RunID       string         `json:"run_id"`
	JobName     string         `json:"job"`
	Manual      bool           `json:"manual"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Duration    time.Duration  `json:"duration_ns"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Summary     map[string]any `json:"summary,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrInvalidSchedule         = errors.New("invalid schedule")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobRunning              = errors.New("job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	Logger *slog.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location

	// DefaultTimeout bounds a run when the job has no timeout of its own.
	// Zero means no bound.
	DefaultTimeout time.Duration

	// MaxHistorySize is the maximum number of job results to keep.
	MaxHistorySize int

	// TickInterval is how often due jobs are checked.
	TickInterval time.Duration

	Metrics Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Logger:         slog.Default(),
		Timezone:       time.UTC,
		DefaultTimeout: 2 * time.Hour,
		MaxHistorySize: 200,
		TickInterval:   time.Second,
	}
}

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	log            *slog.Logger
	timezone       *time.Location
	defaultTimeout time.Duration
	maxHistory     int
	tickInterval   time.Duration
	metrics        Metrics
	now            func() time.Time

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	lastRuns map[string]*JobResult
	history  []JobResult
}

type scheduledJob struct {
	job      Job
	schedule Schedule
	timeout  time.Duration
	enabled  bool

	// active is set while a run is in flight.
	active bool

	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
	skipCount int64
}

// JobOption configures a registered job.
type JobOption func(*scheduledJob)

// WithJobTimeout bounds every run of the job.
func WithJobTimeout(d time.Duration) JobOption {
	return func(sj *scheduledJob) {
		sj.timeout = d
	}
}

// Disabled registers the job without scheduling it. It can still be run
// manually.
func Disabled() JobOption {
	return func(sj *scheduledJob) {
		sj.enabled = false
	}
}

// New creates a new Scheduler with the given configuration.
func New(config Config) *Scheduler {
	defaults := DefaultConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Timezone == nil {
		config.Timezone = defaults.Timezone
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = defaults.MaxHistorySize
	}
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}

	return &Scheduler{
		log:            config.Logger.With("component", "scheduler"),
		timezone:       config.Timezone,
		defaultTimeout: config.DefaultTimeout,
		maxHistory:     config.MaxHistorySize,
		tickInterval:   config.TickInterval,
		metrics:        config.Metrics,
		now:            time.Now,
		jobs:           make(map[string]*scheduledJob),
		lastRuns:       make(map[string]*JobResult),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule, opts ...JobOption) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		timeout:  s.defaultTimeout,
		enabled:  true,
	}
	for _, opt := range opts {
		opt(sj)
	}
	if sj.enabled {
		sj.nextRun = schedule.Next(s.now().In(s.timezone))
	}
	s.jobs[name] = sj

	s.log.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"enabled", sj.enabled,
		"next_run", sj.nextRun.Format(time.RFC3339),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = s.now()
	jobs := len(s.jobs)
	s.mu.Unlock()

	s.log.Info("scheduler started", "jobs_count", jobs)

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.log.Info("scheduler stopped", "uptime", time.Since(s.startedAt).String())
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(s.ctx, s.now())
		}
	}
}

// tick starts every due job that is not already running.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	now = now.In(s.timezone)

	s.mu.Lock()
	var due []*scheduledJob
	for name, sj := range s.jobs {
		if !sj.enabled || sj.nextRun.IsZero() || now.Before(sj.nextRun) {
			continue
		}
		sj.nextRun = sj.schedule.Next(now)
		if sj.active {
			sj.skipCount++
			s.log.Warn("job still running, tick skipped", "job", name, "next_run", sj.nextRun.Format(time.RFC3339))
			continue
		}
		sj.active = true
		due = append(due, sj)
	}
	s.mu.Unlock()

	for _, sj := range due {
		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			s.execute(ctx, sj, false)
		}(sj)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job by name, ignoring its schedule. It fails with
// ErrJobRunning when the job is already in flight.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.active {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	sj.active = true
	s.mu.Unlock()

	result, err := s.execute(ctx, sj, true)
	return &result, err
}

// execute runs one job to completion. The caller must have set sj.active.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) (JobResult, error) {
	name := sj.job.Name()
	runID := uuid.NewString()
	log := s.log.With("job", name, "run_id", runID)

	if sj.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sj.timeout)
		defer cancel()
	}

	startedAt := s.now()
	s.mu.Lock()
	sj.lastRun = startedAt
	sj.runCount++
	s.mu.Unlock()

	log.Info("job started", "manual", manual)
	err := s.run(ctx, sj.job)
	completedAt := s.now()

	result := JobResult{
		RunID:       runID,
		JobName:     name,
		Manual:      manual,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}
	if summarizer, ok := sj.job.(Summarizer); ok {
		result.Summary = summarizer.Summary()
	}

	if s.metrics != nil {
		s.metrics.JobFinished(name, result.Duration, err)
	}

	s.mu.Lock()
	sj.active = false
	if err != nil {
		sj.failCount++
	}
	s.lastRuns[name] = &result
	s.history = append(s.history, result)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	s.mu.Unlock()

	if err != nil {
		log.Error("job failed", "duration", result.Duration.String(), "error", err)
	} else {
		log.Info("job completed", "duration", result.Duration.String())
	}
	return result, err
}

// run converts a panicking job into an error so one bad run cannot take the
// process down.
func (s *Scheduler) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	Running     bool       `json:"running"`
	Schedule    string     `json:"schedule"`
	Timeout     string     `json:"timeout,omitempty"`
	LastRun     time.Time  `json:"last_run"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	SkipCount   int64      `json:"skip_count"`
	LastResult  *JobResult `json:"last_result,omitempty"`
}

// ListJobs returns information about all registered jobs, ordered by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, s.info(name, sj))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// GetJobInfo returns information about a specific job.
func (s *Scheduler) GetJobInfo(jobName string) (*JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	info := s.info(jobName, sj)
	return &info, nil
}

func (s *Scheduler) info(name string, sj *scheduledJob) JobInfo {
	info := JobInfo{
		Name:        name,
		Description: sj.job.Description(),
		Enabled:     sj.enabled,
		Running:     sj.active,
		Schedule:    sj.schedule.String(),
		LastRun:     sj.lastRun,
		NextRun:     sj.nextRun,
		RunCount:    sj.runCount,
		FailCount:   sj.failCount,
		SkipCount:   sj.skipCount,
	}
	if sj.timeout > 0 {
		info.Timeout = sj.timeout.String()
	}
	if last, ok := s.lastRuns[name]; ok {
		copied := *last
		info.LastResult = &copied
	}
	return info
}

// History returns up to limit of the most recent results, oldest first.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]JobResult, limit)
	copy(result, s.history[len(s.history)-limit:])
	return result
}
