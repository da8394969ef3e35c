// Package scheduler implements SynchronizerScheduler: one state machine
// per (resource, localResourceNode, remoteResourceNode) that consumes the
// latest ResourceDnsResult on every cron tick and gates synchronize/test
// work accordingly.
//
// The concurrency shape -- a mutex-guarded struct registered against a
// shared ticker -- is grounded on pkg/scheduler/scheduler.go's original
// Scheduler; the state-machine semantics themselves are grounded on
// original_source/.../CronResourceSynchronizer.java.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/appcluster/pkg/cron"
	"github.com/cuemby/appcluster/pkg/log"
	"github.com/cuemby/appcluster/pkg/model"
	"github.com/cuemby/appcluster/pkg/status"
)

// Synchronizer is the external plugin that actually performs or tests a
// synchronization between two resource nodes.
type Synchronizer interface {
	CanSynchronize(mode status.SynchronizationMode, localDns, remoteDns *model.ResourceDnsResult) bool
	Synchronize(ctx context.Context, mode status.SynchronizationMode, localDns, remoteDns *model.ResourceDnsResult) model.ResourceSynchronizationResult
}

// DnsResultSource exposes the latest DNS pass for a resource, typically a
// *dnsmonitor.Monitor.
type DnsResultSource interface {
	LastResult() *model.ResourceDnsResult
}

// Config configures one Scheduler.
type Config struct {
	Resource            model.Resource
	Local               model.ResourceNode
	Remote              model.ResourceNode
	Synchronizer        Synchronizer
	SynchronizeSchedule cron.Schedule
	TestSchedule        cron.Schedule
	SynchronizeTimeout  time.Duration
	TestTimeout         time.Duration
	Daemon              *cron.Daemon
	LocalDnsSource      DnsResultSource
	RemoteDnsSource     DnsResultSource
	Notify              func(old, new *model.ResourceSynchronizationResult)
}

// Scheduler is the per-(resource,local,remote) state machine.
type Scheduler struct {
	cfg      Config
	combined cron.MultiSchedule

	mu           sync.Mutex
	state        status.ResourceSynchronizerState
	stateMessage string
	forcedMode   *status.SynchronizationMode
	lastResult   *model.ResourceSynchronizationResult
	jobID        int
	registered   bool
	generation   int
}

// New builds a stopped Scheduler from cfg.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		combined: cron.MultiSchedule{Schedules: []cron.Schedule{cfg.SynchronizeSchedule, cfg.TestSchedule}},
		state:    status.SchedulerStopped,
	}
}

// Start transitions STOPPED -> DISABLED or STOPPED -> SLEEPING depending on
// whether the cluster, resource, and both nodes are enabled, per spec §4.3.
func (s *Scheduler) Start(clusterEnabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !clusterEnabled:
		s.state = status.SchedulerDisabled
		s.stateMessage = "cluster disabled"
	case !s.cfg.Resource.Enabled:
		s.state = status.SchedulerDisabled
		s.stateMessage = "resource disabled"
	case !s.cfg.Local.Node.Enabled:
		s.state = status.SchedulerDisabled
		s.stateMessage = "local node disabled"
	case !s.cfg.Remote.Node.Enabled:
		s.state = status.SchedulerDisabled
		s.stateMessage = "remote node disabled"
	default:
		s.state = status.SchedulerSleeping
		s.stateMessage = ""
		s.jobID = s.cfg.Daemon.Register(s)
		s.registered = true
	}
}

// Stop cancels the daemon registration and clears in-memory state. A
// synchronization already in flight is allowed to finish or time out; its
// completion is recognized as stale via the bumped generation counter and
// discarded instead of transitioning state.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registered {
		s.cfg.Daemon.Unregister(s.jobID)
		s.registered = false
	}
	s.generation++
	s.state = status.SchedulerStopped
	s.stateMessage = ""
	s.forcedMode = nil
	s.lastResult = nil
}

// SynchronizeNow forces mode and triggers an immediate tick if currently
// SLEEPING; the call is dropped otherwise, per spec §4.3.
func (s *Scheduler) SynchronizeNow(mode status.SynchronizationMode) {
	s.mu.Lock()
	if s.state != status.SchedulerSleeping {
		s.mu.Unlock()
		return
	}
	m := mode
	s.forcedMode = &m
	s.mu.Unlock()

	go s.Run(time.Now().Truncate(time.Minute))
}

// Run is invoked by the cron.Daemon once per minute tick.
func (s *Scheduler) Run(tick time.Time) {
	s.mu.Lock()
	if s.state != status.SchedulerSleeping {
		s.mu.Unlock()
		return
	}

	mode, ok := s.decideLocked(tick)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.forcedMode = nil
	gen := s.generation
	if mode == status.ModeSynchronize {
		s.state = status.SchedulerSynchronizing
	} else {
		s.state = status.SchedulerTesting
	}
	s.mu.Unlock()

	go s.execute(mode, gen)
}

// decideLocked implements the sync/test gating of spec §4.3. Must be
// called with s.mu held.
func (s *Scheduler) decideLocked(tick time.Time) (status.SynchronizationMode, bool) {
	local := s.cfg.LocalDnsSource.LastResult()
	remote := s.cfg.RemoteDnsSource.LastResult()
	if isInconsistent(local) {
		return 0, false
	}

	forced := s.forcedMode
	syncWants := (forced != nil && *forced == status.ModeSynchronize) ||
		(forced == nil && s.cfg.SynchronizeSchedule.IsScheduled(tick))
	testWants := (forced != nil && *forced == status.ModeTestOnly) ||
		(forced == nil && s.cfg.TestSchedule.IsScheduled(tick))

	if syncWants && s.cfg.Synchronizer.CanSynchronize(status.ModeSynchronize, local, remote) {
		return status.ModeSynchronize, true
	}
	if testWants && s.cfg.Synchronizer.CanSynchronize(status.ModeTestOnly, local, remote) {
		return status.ModeTestOnly, true
	}
	return 0, false
}

// isInconsistent treats a missing result as not-yet-ready, which also
// gates out synchronize/test the way a genuinely INCONSISTENT result does.
func isInconsistent(r *model.ResourceDnsResult) bool {
	if r == nil {
		return true
	}
	return r.ResourceStatus(status.Healthy) == status.Inconsistent
}

// execute runs the synchronizer with a per-mode timeout and publishes the
// result, unless gen is stale (the scheduler was stopped while work was in
// flight).
func (s *Scheduler) execute(mode status.SynchronizationMode, gen int) {
	runID := uuid.New().String()
	logger := log.WithNode(s.cfg.Local.Node.ID).With().
		Str("component", "scheduler").
		Str("resource", s.cfg.Resource.ID).
		Str("remote_node", s.cfg.Remote.Node.ID).
		Str("run_id", runID).
		Str("mode", mode.String()).
		Logger()
	logger.Info().Msg("running")

	local := s.cfg.LocalDnsSource.LastResult()
	remote := s.cfg.RemoteDnsSource.LastResult()

	timeout := s.cfg.SynchronizeTimeout
	if mode == status.ModeTestOnly {
		timeout = s.cfg.TestTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resultCh := make(chan model.ResourceSynchronizationResult, 1)
	go func() {
		resultCh <- s.cfg.Synchronizer.Synchronize(ctx, mode, local, remote)
	}()

	var result model.ResourceSynchronizationResult
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		logger.Error().Msg("synchronizer timed out")
		now := time.Now()
		result = model.NewResourceSynchronizationResult(s.cfg.Local, s.cfg.Remote, mode, []model.Step{{
			StartTime:      now,
			EndTime:        now,
			ResourceStatus: status.Error,
			Description:    "future.get",
			Errors:         []string{ctx.Err().Error()},
		}})
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		logger.Info().Msg("discarding stale result after stop")
		return
	}
	old := s.lastResult
	r := result
	s.lastResult = &r
	s.state = status.SchedulerSleeping
	s.mu.Unlock()

	logger.Info().Str("status", r.ResourceStatus().String()).Msg("completed")
	if s.cfg.Notify != nil {
		s.cfg.Notify(old, &r)
	}
}

// State returns the current state and, when DISABLED, the reason message.
func (s *Scheduler) State() (status.ResourceSynchronizerState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.stateMessage
}

// RemoteNodeID identifies the remote node this scheduler synchronizes
// the local node against, for callers (the status CLI) that report on
// schedulers without holding a *Scheduler's Config.
func (s *Scheduler) RemoteNodeID() string {
	return s.cfg.Remote.Node.ID
}

// LastResult returns the most recently completed synchronization result,
// or nil.
func (s *Scheduler) LastResult() *model.ResourceSynchronizationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// ResultStatus implements spec §4.4's per-scheduler status fold: the last
// result's status if any, else STARTING when sleeping, else the state's
// own mapped status.
func (s *Scheduler) ResultStatus() status.ResourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult != nil {
		return s.lastResult.ResourceStatus()
	}
	if s.state == status.SchedulerSleeping {
		return status.Starting
	}
	return s.state.ResourceStatus()
}

// CanSynchronizeNow reports, without side effects, whether a SYNCHRONIZE
// run could start now: the scheduler is SLEEPING, the DNS result is not
// INCONSISTENT, and the synchronizer accepts the mode. The cron schedules
// are not consulted.
func (s *Scheduler) CanSynchronizeNow() bool {
	return s.canNow(status.ModeSynchronize)
}

// CanTestNow is CanSynchronizeNow for a TEST_ONLY run.
func (s *Scheduler) CanTestNow() bool {
	return s.canNow(status.ModeTestOnly)
}

func (s *Scheduler) canNow(mode status.SynchronizationMode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != status.SchedulerSleeping {
		return false
	}
	local := s.cfg.LocalDnsSource.LastResult()
	if isInconsistent(local) {
		return false
	}
	remote := s.cfg.RemoteDnsSource.LastResult()
	return s.cfg.Synchronizer.CanSynchronize(mode, local, remote)
}
