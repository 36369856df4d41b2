package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler runs background jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:    cron.New(),
		logger:  logger.Named("scheduler"),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started.")
}

// Stop halts scheduling, cancels the job context and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	s.cancel()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped.")
}

// AddJob registers job with a standard five-field cron schedule or a
// descriptor such as "@daily" or "@every 1h".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	id, err := s.cron.AddFunc(schedule, func() {
		s.run(job)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[job.Name()] = id
	s.mu.Unlock()

	s.logger.Info("Job registered.", zap.String("schedule", schedule), zap.String("job", job.Name()))

	return nil
}

func (s *Scheduler) run(job Job) {
	s.logger.Debug("Running job.", zap.String("job", job.Name()))

	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("Job failed.", zap.String("job", job.Name()), zap.Error(err))

		return
	}

	s.logger.Debug("Job completed.", zap.String("job", job.Name()))
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.logger.Info("Running job immediately.", zap.String("job", job.Name()))

	return job.Run(s.ctx)
}

// Jobs returns the registered cron entries keyed by job name.
func (s *Scheduler) Jobs() map[string]cron.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]cron.Entry, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id)
	}

	return out
}
