// Package scheduler runs the engine's periodic sweeps using gocron v2.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/micropaywall/paygate/internal/shared/logger"
)

// BatchJob processes one batch per Execute call and returns the number of
// items it changed.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// BatchJobFunc adapts a function to BatchJob.
type BatchJobFunc func(ctx context.Context) (int, error)

func (f BatchJobFunc) Execute(ctx context.Context) (int, error) {
	return f(ctx)
}

// JobSpec describes one periodic sweep.
type JobSpec struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
	Job     BatchJob
}

// SchedulerManager owns a single gocron scheduler for every sweep. Runs of
// one job never overlap; a run that overlaps the next tick is rescheduled.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	// Track whether the scheduler has been started
	started   bool
	startedMu sync.Mutex
}

func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerManager{
		scheduler: scheduler,
		logger:    log.Named("scheduler"),
	}, nil
}

// Register adds a job that runs once at start and then every spec.Interval.
func (m *SchedulerManager) Register(spec JobSpec) error {
	if spec.Job == nil || spec.Interval <= 0 {
		return fmt.Errorf("job %q needs a task and a positive interval", spec.Name)
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = spec.Interval
	}

	_, err := m.scheduler.NewJob(
		gocron.DurationJob(spec.Interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			m.run(ctx, spec)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("sweep", spec.Name),
		gocron.WithName(spec.Name),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", spec.Name, err)
	}

	m.logger.Infow("registered job", "job", spec.Name, "interval", spec.Interval)
	return nil
}

func (m *SchedulerManager) run(ctx context.Context, spec JobSpec) {
	startTime := time.Now()

	count, err := spec.Job.Execute(ctx)
	if err != nil {
		m.logger.Errorw("scheduled job failed",
			"job", spec.Name,
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}

	if count > 0 {
		m.logger.Infow("scheduled job processed items",
			"job", spec.Name,
			"count", count,
			"duration", time.Since(startTime),
		)
	} else {
		m.logger.Debugw("scheduled job found nothing to process",
			"job", spec.Name,
			"duration", time.Since(startTime),
		)
	}
}

// Start starts the scheduler. Calling it twice is a no-op.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()
	if m.started {
		return
	}
	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler started", "jobs", len(m.scheduler.Jobs()))
}

// Shutdown stops the scheduler and waits for running jobs to finish.
func (m *SchedulerManager) Shutdown() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()
	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	m.started = false
	m.logger.Infow("scheduler stopped")
	return nil
}
