package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-blob-pipeline/internal/store"
)

// Runner executes one pipeline run.
type Runner interface {
	RunWithID(ctx context.Context, id string, trigger store.Trigger) (store.Run, error)
}

// Scheduler runs the pipeline on a cron schedule and on demand.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *gocron.Job
	runner    Runner
	newID     func() string
	expr      string
	catchUp   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Scheduler. expr is a standard cron expression evaluated
// in UTC. When catchUp is set, one run fires as soon as the scheduler starts.
func New(expr string, catchUp bool, runner Runner, newID func() string) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// A run never overlaps the previous one.
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		newID:     newID,
		expr:      expr,
		catchUp:   catchUp,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the pipeline job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	job, err := s.scheduler.Cron(s.expr).Do(func() {
		s.run(store.TriggerSchedule, s.newID())
	})
	if err != nil {
		return err
	}
	s.job = job

	s.scheduler.StartAsync()
	slog.Info("scheduler started", "schedule", s.expr, "next_run", job.NextRun())

	if s.catchUp {
		slog.Info("scheduler: catch-up enabled, running now")
		s.scheduler.RunAll()
	}
	return nil
}

// Trigger starts a manual run in the background and returns its ID.
func (s *Scheduler) Trigger() string {
	id := s.newID()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(store.TriggerManual, id)
	}()
	return id
}

// NextRun returns the time of the next scheduled run, or the zero time
// before Start.
func (s *Scheduler) NextRun() time.Time {
	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

func (s *Scheduler) run(trigger store.Trigger, id string) {
	slog.Info("scheduler: running weather pipeline", "trigger", trigger, "run_id", id)
	if _, err := s.runner.RunWithID(s.ctx, id, trigger); err != nil {
		slog.Error("scheduler: weather pipeline failed", "trigger", trigger, "run_id", id, "error", err)
		return
	}
	slog.Info("scheduler: completed weather pipeline", "trigger", trigger, "run_id", id)
}

// Stop cancels in-flight runs, stops future jobs and waits for manual runs
// to return.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.wg.Wait()
}
