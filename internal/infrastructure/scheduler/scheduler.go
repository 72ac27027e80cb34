package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobStatus represents the status of a job run
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
	JobStatusSkipped JobStatus = "SKIPPED"
)

// JobFunc is the work performed on each tick.
type JobFunc func(ctx context.Context) error

// Job is a named recurring task on a standard five-field cron schedule
// (descriptors such as "@every 1m" are accepted).
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      JobFunc
}

// JobRun records one execution of a job
type JobRun struct {
	ID          uuid.UUID  `json:"id"`
	Job         string     `json:"job"`
	Trigger     string     `json:"trigger"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newJobRun(job, trigger string) *JobRun {
	return &JobRun{ID: uuid.New(), Job: job, Trigger: trigger, Status: JobStatusPending}
}

// Start marks the run as running
func (r *JobRun) Start() {
	now := time.Now()
	r.Status = JobStatusRunning
	r.StartedAt = &now
	r.Error = ""
}

// Complete marks the run as successful
func (r *JobRun) Complete() {
	now := time.Now()
	r.Status = JobStatusSuccess
	r.CompletedAt = &now
}

// Fail marks the run as failed
func (r *JobRun) Fail(err string) {
	now := time.Now()
	r.Status = JobStatusFailed
	r.CompletedAt = &now
	r.Error = err
}

// Duration returns how long the run took, or 0 while running
func (r *JobRun) Duration() time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}

// JobInfo describes a registered job
type JobInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next_run"`
	Prev     time.Time `json:"prev_run"`
	Running  bool      `json:"running"`
	LastRun  *JobRun   `json:"last_run,omitempty"`
}

// Config holds scheduler configuration
type Config struct {
	// DefaultTimeout bounds jobs registered without their own timeout
	DefaultTimeout time.Duration
	Location       *time.Location
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Minute,
		Location:       time.UTC,
	}
}

type entry struct {
	job     Job
	id      cron.EntryID
	running atomic.Bool

	mu   sync.Mutex
	last *JobRun
}

func (e *entry) lastRun() *JobRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return nil
	}
	cp := *e.last
	return &cp
}

func (e *entry) setLast(run *JobRun) {
	cp := *run
	e.mu.Lock()
	e.last = &cp
	e.mu.Unlock()
}

// Scheduler runs named jobs on cron schedules. A job never overlaps itself:
// a tick that fires while the previous run is still in progress is skipped.
type Scheduler struct {
	config Config
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Scheduler{
		config: config,
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithLogger(cronLogger{sugar: logger.Named("cron").Sugar()}),
		),
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Register validates and schedules a job. Jobs may be registered before or
// after Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("%w: job requires a name and a run function", ErrInvalidConfig)
	}
	schedule, err := cron.ParseStandard(job.Schedule)
	if err != nil {
		return fmt.Errorf("%w: job %s has invalid cron expression %q: %v", ErrInvalidConfig, job.Name, job.Schedule, err)
	}
	if job.Timeout <= 0 {
		job.Timeout = s.config.DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyRegistered, job.Name)
	}

	e := &entry{job: job}
	e.id = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.wg.Add(1)
		defer s.wg.Done()
		_ = s.execute(s.baseContext(), e, "schedule")
	}))
	s.entries[job.Name] = e

	s.logger.Info("Job registered",
		zap.String("job", job.Name),
		zap.String("schedule", job.Schedule),
		zap.Time("next_run", schedule.Next(time.Now().In(s.config.Location))),
	)
	return nil
}

// Start starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	s.cron.Start()

	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.entries)))
	return nil
}

// Stop stops scheduling new runs and waits for in-flight runs to finish or
// for ctx to expire. In-flight runs see their context cancelled on expiry.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		s.logger.Warn("Scheduler stop timed out, in-flight jobs cancelled")
		return ctx.Err()
	}
}

// Trigger runs a registered job immediately and waits for it. It returns
// ErrJobAlreadyRunning when the job is mid-run.
func (s *Scheduler) Trigger(ctx context.Context, name string) (*JobRun, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.wg.Add(1)
	defer s.wg.Done()
	run := s.execute(ctx, e, "manual")
	if run.Status == JobStatusSkipped {
		return run, ErrJobAlreadyRunning
	}
	return run, nil
}

// Jobs lists registered jobs sorted by name
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		ce := s.cron.Entry(e.id)
		infos = append(infos, JobInfo{
			Name:     name,
			Schedule: e.job.Schedule,
			Next:     ce.Next,
			Prev:     ce.Prev,
			Running:  e.running.Load(),
			LastRun:  e.lastRun(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// IsRunning reports whether the cron loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// execute runs a job once, recording the outcome on the entry
func (s *Scheduler) execute(ctx context.Context, e *entry, trigger string) (run *JobRun) {
	run = newJobRun(e.job.Name, trigger)
	if !e.running.CompareAndSwap(false, true) {
		run.Status = JobStatusSkipped
		s.logger.Warn("Job still running, skipping",
			zap.String("job", e.job.Name),
			zap.String("trigger", trigger),
		)
		return run
	}
	defer e.running.Store(false)

	run.Start()
	e.setLast(run)
	s.logger.Info("Processing job",
		zap.String("job", e.job.Name),
		zap.String("run_id", run.ID.String()),
		zap.String("trigger", trigger),
	)

	jobCtx, cancel := context.WithTimeout(ctx, e.job.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			run.Fail(fmt.Sprintf("panic: %v", r))
			e.setLast(run)
			s.logger.Error("Job panicked",
				zap.String("job", e.job.Name),
				zap.String("run_id", run.ID.String()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if err := e.job.Run(jobCtx); err != nil {
		run.Fail(err.Error())
		e.setLast(run)
		s.logger.Error("Job failed",
			zap.String("job", e.job.Name),
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
		return run
	}

	run.Complete()
	e.setLast(run)
	s.logger.Info("Job completed successfully",
		zap.String("job", e.job.Name),
		zap.String("run_id", run.ID.String()),
		zap.Duration("duration", run.Duration()),
	)
	return run
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
