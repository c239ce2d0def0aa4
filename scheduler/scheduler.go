package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Job interface {
	Run()
}

type SchedulerParams struct {
	Logger zerolog.Logger
	// Defaults to time.Local.
	Location *time.Location
}

func NewScheduler(params SchedulerParams) *Scheduler {
	logger := cronLogger{params.Logger.With().Str("component", "scheduler").Logger()}
	opts := []cron.Option{
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
	}
	if params.Location != nil {
		opts = append(opts, cron.WithLocation(params.Location))
	}

	return &Scheduler{
		cron:   cron.New(opts...),
		logger: params.Logger,
		jobs:   make(map[cron.EntryID]string),
	}
}

type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[cron.EntryID]string
	logger zerolog.Logger
}

// Start the scheduler in its own routine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop the scheduler and wait for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) AddJob(name string, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.cron.AddJob(schedule, job)
	if err != nil {
		return fmt.Errorf("could not add job %q: %w", name, err)
	}

	s.jobs[entry] = name
	s.logger.Debug().Str("job", name).Str("schedule", schedule).Msg("scheduled job")

	return nil
}

func (s *Scheduler) RemoveJobs() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for entry := range s.jobs {
		s.cron.Remove(entry)
		delete(s.jobs, entry)
	}
}

type Entry struct {
	Name string
	Next time.Time
	Prev time.Time
}

// Entries lists scheduled jobs, soonest first. Next is zero until the
// scheduler has been started.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for _, e := range s.cron.Entries() {
		name, ok := s.jobs[e.ID]
		if !ok {
			continue
		}
		out = append(out, Entry{Name: name, Next: e.Next, Prev: e.Prev})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Next.Before(out[j].Next)
	})
	return out
}

// cronLogger routes cron's logging into zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
