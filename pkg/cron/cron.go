// Package cron drives minute-granularity ticks and exact schedule
// matching for SynchronizerScheduler. Schedule strings are parsed with
// robfig/cron/v3's standard 5-field parser; the tick daemon itself is
// hand-rolled (grounded on the ticker-loop idiom in
// pkg/scheduler/scheduler.go) because the scheduler needs an exact
// "is this literal minute scheduled" boolean, which robfig/cron's own
// dispatch loop does not expose.
package cron

import (
	"sync"
	"time"

	robfig "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cuemby/appcluster/pkg/log"
)

// Schedule reports whether a given minute-truncated time is scheduled.
type Schedule interface {
	IsScheduled(t time.Time) bool
}

// spec wraps a parsed robfig/cron/v3 schedule.
type spec struct {
	s robfig.Schedule
}

// Parse parses a standard 5-field cron expression (minute hour
// dayOfMonth month dayOfWeek).
func Parse(expr string) (Schedule, error) {
	s, err := robfig.ParseStandard(expr)
	if err != nil {
		return nil, err
	}
	return &spec{s: s}, nil
}

// IsScheduled reports whether t's minute is a scheduled tick, by checking
// that the schedule's next fire time after (t - 1s) truncates to the same
// minute as t.
func (s *spec) IsScheduled(t time.Time) bool {
	truncated := t.Truncate(time.Minute)
	next := s.s.Next(t.Add(-time.Second))
	return next.Truncate(time.Minute).Equal(truncated)
}

// MultiSchedule fires whenever any of its component schedules would.
type MultiSchedule struct {
	Schedules []Schedule
}

func (m MultiSchedule) IsScheduled(t time.Time) bool {
	for _, s := range m.Schedules {
		if s.IsScheduled(t) {
			return true
		}
	}
	return false
}

// Job is invoked once per minute tick by the Daemon, receiving the
// truncated tick time.
type Job interface {
	Run(tick time.Time)
}

// Daemon drives one goroutine that ticks every minute, on the minute, and
// invokes every registered job. It exists so every SynchronizerScheduler
// shares one timekeeping thread rather than running its own ticker, the
// Go shape of "one registration into an external cron daemon per
// scheduler; the cron daemon drives ticks on its own thread" (spec §5).
type Daemon struct {
	mu      sync.Mutex
	jobs    map[int]Job
	nextID  int
	cancel  func()
	done    chan struct{}
	started bool

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// NewDaemon returns a stopped Daemon.
func NewDaemon() *Daemon {
	return &Daemon{jobs: make(map[int]Job), now: time.Now}
}

// Register adds job to the daemon and returns a token for Unregister.
func (d *Daemon) Register(job Job) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.jobs[id] = job
	return id
}

// Unregister removes a job previously added with Register.
func (d *Daemon) Unregister(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.jobs, id)
}

// Start begins the minute-tick loop if not already running.
func (d *Daemon) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	stop := make(chan struct{})
	d.cancel = func() { close(stop) }
	d.done = make(chan struct{})
	d.mu.Unlock()

	logger := log.WithComponent("cron")
	logger.Info().Msg("starting")
	go d.run(stop)
}

// Stop halts the tick loop and waits for it to exit.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	cancel := d.cancel
	done := d.done
	d.mu.Unlock()

	cancel()
	<-done
}

func (d *Daemon) run(stop chan struct{}) {
	defer close(d.done)
	logger := log.WithComponent("cron")
	for {
		now := d.now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-timer.C:
			d.fire(next, logger)
		case <-stop:
			timer.Stop()
			logger.Info().Msg("stopped")
			return
		}
	}
}

// fire invokes every registered job for tick, recovering and logging a
// panic from any one job so it cannot take down the shared tick loop,
// per spec §7's "everything else is caught, logged, and execution
// continues".
func (d *Daemon) fire(tick time.Time, logger zerolog.Logger) {
	d.mu.Lock()
	jobs := make([]Job, 0, len(d.jobs))
	for _, j := range d.jobs {
		jobs = append(jobs, j)
	}
	d.mu.Unlock()

	for _, j := range jobs {
		runJob(j, tick, logger)
	}
}

func runJob(j Job, tick time.Time, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Time("tick", tick).Msg("job panicked")
		}
	}()
	j.Run(tick)
}
