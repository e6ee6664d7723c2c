package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether spec is a usable 5-field cron expression.
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule: invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs one job on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	job    cron.Job
	logger *slog.Logger

	mu    sync.Mutex
	spec  string
	entry cron.EntryID
	ctx   context.Context
	wg    sync.WaitGroup
}

// New returns a Scheduler that calls run on spec. The context passed to run
// is the one given to Start.
func New(spec string, run func(ctx context.Context), logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid cron expression %q: %w", spec, err)
	}
	l := cronLogger{logger}
	s := &Scheduler{
		cron:   cron.New(cron.WithParser(parser), cron.WithLogger(l)),
		logger: logger,
		spec:   spec,
		ctx:    context.Background(),
	}
	// One wrapper for scheduled and manual runs so the overlap guard is shared.
	s.job = cron.NewChain(cron.Recover(l), cron.SkipIfStillRunning(l)).Then(cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		run(ctx)
	}))
	s.entry = s.cron.Schedule(sched, s.job)
	return s, nil
}

// Start begins ticking. With runNow, one run starts immediately.
func (s *Scheduler) Start(ctx context.Context, runNow bool) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("schedule: started", "cron", s.Spec(), "next", s.Next())
	if runNow {
		s.RunNow()
	}
}

// RunNow triggers a run outside the schedule. It is skipped when a run is
// already in flight.
func (s *Scheduler) RunNow() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.job.Run()
	}()
}

// Reschedule replaces the cron expression. An invalid spec leaves the
// current schedule in place.
func (s *Scheduler) Reschedule(spec string) error {
	sched, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("schedule: invalid cron expression %q: %w", spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.spec {
		return nil
	}
	s.cron.Remove(s.entry)
	s.entry = s.cron.Schedule(sched, s.job)
	s.logger.Info("schedule: updated", "from", s.spec, "to", spec)
	s.spec = spec
	return nil
}

// Spec returns the active cron expression.
func (s *Scheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Next returns the time of the next scheduled run, or the zero time before
// Start.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	id := s.entry
	s.mu.Unlock()
	return s.cron.Entry(id).Next
}

// Stop halts the schedule and waits for any running job to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("schedule: stopped")
}

// cronLogger routes robfig/cron logging to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("schedule: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("schedule: "+msg, append(keysAndValues, "err", err)...)
}
