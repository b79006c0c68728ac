// Package scheduler runs named background jobs at fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrDuplicateJob = errors.New("job already registered")
	ErrUnknownJob   = errors.New("unknown job")
	ErrInvalidJob   = errors.New("invalid job")
)

// JobStatus represents the outcome of a job's most recent run
type JobStatus string

const (
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobFunc is the work performed on each run.
type JobFunc func(ctx context.Context) error

// Job is a snapshot of a registered job.
type Job struct {
	ID        string
	Name      string
	Interval  time.Duration
	Status    JobStatus
	Runs      int
	LastError string
	NextRun   time.Time
	LastRun   time.Time
}

type entry struct {
	Job
	run     JobFunc
	trigger bool
}

// Scheduler runs registered jobs on their intervals
type Scheduler struct {
	logger  *zap.Logger
	jobs    map[string]*entry
	jobMu   sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	wakeup  chan struct{}
	started bool
	now     func() time.Time
}

// NewScheduler creates a Scheduler bound to ctx.
func NewScheduler(ctx context.Context, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		logger: logger.Named("scheduler"),
		jobs:   make(map[string]*entry),
		ctx:    cctx,
		cancel: cancel,
		wakeup: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Register adds a job that first runs one interval from now.
func (s *Scheduler) Register(name string, interval time.Duration, fn JobFunc) (*Job, error) {
	if name == "" || interval <= 0 || fn == nil {
		return nil, fmt.Errorf("%w: name, positive interval and func are required", ErrInvalidJob)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	e := &entry{
		Job: Job{
			ID:       uuid.NewString(),
			Name:     name,
			Interval: interval,
			Status:   JobStatusScheduled,
			NextRun:  s.now().Add(interval),
		},
		run: fn,
	}
	s.jobs[name] = e
	s.signalWakeup()

	snapshot := e.Job
	return &snapshot, nil
}

// RunNow makes the named job due immediately.
func (s *Scheduler) RunNow(name string) error {
	s.jobMu.Lock()
	e, ok := s.jobs[name]
	if ok {
		e.trigger = true
	}
	s.jobMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.signalWakeup()
	return nil
}

// Jobs returns snapshots of every registered job.
func (s *Scheduler) Jobs() []Job {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.Job)
	}
	return out
}

// signalWakeup notifies the scheduling loop to re-evaluate jobs
func (s *Scheduler) signalWakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// Start begins the scheduling loop. Calling it twice has no effect.
func (s *Scheduler) Start() {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.schedulingLoop()
}

// schedulingLoop waits for the next due job and runs it
func (s *Scheduler) schedulingLoop() {
	defer s.wg.Done()
	for {
		timer := time.NewTimer(time.Until(s.findNextJobTime()))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		}
		s.runDue()
	}
}

// findNextJobTime finds the soonest NextRun among registered jobs
func (s *Scheduler) findNextJobTime() time.Time {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	next := s.now().Add(24 * time.Hour)
	for _, e := range s.jobs {
		if e.trigger {
			return s.now()
		}
		if e.NextRun.Before(next) {
			next = e.NextRun
		}
	}
	return next
}

func (s *Scheduler) runDue() {
	now := s.now()
	var due []*entry

	s.jobMu.Lock()
	for _, e := range s.jobs {
		if e.trigger || !e.NextRun.After(now) {
			e.trigger = false
			e.Status = JobStatusRunning
			due = append(due, e)
		}
	}
	s.jobMu.Unlock()

	for _, e := range due {
		if s.ctx.Err() != nil {
			return
		}
		s.execute(e)
	}
}

// execute runs one job. Jobs run sequentially on the loop goroutine, so a
// job never overlaps with itself.
func (s *Scheduler) execute(e *entry) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return e.run(s.ctx)
	}()

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	finished := s.now()
	e.Runs++
	e.LastRun = finished
	e.NextRun = finished.Add(e.Interval)
	if err != nil {
		e.Status = JobStatusFailed
		e.LastError = err.Error()
		s.logger.Warn("job failed", zap.String("job", e.Name), zap.Error(err))
		return
	}
	e.Status = JobStatusCompleted
	e.LastError = ""
	s.logger.Debug("job completed", zap.String("job", e.Name))
}

// Stop gracefully shuts down the scheduler, waiting for a running job
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
