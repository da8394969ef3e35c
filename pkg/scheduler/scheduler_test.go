package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/appcluster/pkg/cron"
	"github.com/cuemby/appcluster/pkg/model"
	"github.com/cuemby/appcluster/pkg/status"
)

type fakeDnsSource struct{ result *model.ResourceDnsResult }

func (f *fakeDnsSource) LastResult() *model.ResourceDnsResult { return f.result }

type fakeSynchronizer struct {
	canSync bool
	result  model.ResourceSynchronizationResult
	delay   time.Duration
}

func (f *fakeSynchronizer) CanSynchronize(mode status.SynchronizationMode, local, remote *model.ResourceDnsResult) bool {
	return f.canSync
}

func (f *fakeSynchronizer) Synchronize(ctx context.Context, mode status.SynchronizationMode, local, remote *model.ResourceDnsResult) model.ResourceSynchronizationResult {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	return f.result
}

func healthyResult() *model.ResourceDnsResult {
	return &model.ResourceDnsResult{MasterStatus: status.MasterConsistent}
}

func inconsistentResult() *model.ResourceDnsResult {
	return &model.ResourceDnsResult{MasterStatus: status.MasterInconsistent}
}

func successStep() model.ResourceSynchronizationResult {
	now := time.Now()
	return model.NewResourceSynchronizationResult(model.ResourceNode{}, model.ResourceNode{}, status.ModeSynchronize, []model.Step{
		{StartTime: now, EndTime: now, ResourceStatus: status.Healthy, Description: "ok"},
	})
}

func everyMinute(t *testing.T) cron.Schedule {
	s, err := cron.Parse("* * * * *")
	require.NoError(t, err)
	return s
}

func never(t *testing.T) cron.Schedule {
	s, err := cron.Parse("0 0 1 1 *")
	require.NoError(t, err)
	return s
}

func TestSchedulerStartDisabledWhenResourceDisabled(t *testing.T) {
	s := New(Config{
		Resource:            model.Resource{Enabled: false},
		Local:               model.ResourceNode{Node: model.Node{Enabled: true}},
		Remote:              model.ResourceNode{Node: model.Node{Enabled: true}},
		SynchronizeSchedule: everyMinute(t),
		TestSchedule:        never(t),
		Daemon:              cron.NewDaemon(),
	})
	s.Start(true)

	st, msg := s.State()
	assert.Equal(t, status.SchedulerDisabled, st)
	assert.Equal(t, "resource disabled", msg)
}

func TestSchedulerSynchronizesOnTick(t *testing.T) {
	notified := make(chan *model.ResourceSynchronizationResult, 1)
	synchronizer := &fakeSynchronizer{canSync: true, result: successStep()}
	s := New(Config{
		Resource:            model.Resource{Enabled: true},
		Local:               model.ResourceNode{Node: model.Node{Enabled: true}},
		Remote:              model.ResourceNode{Node: model.Node{Enabled: true}},
		Synchronizer:        synchronizer,
		SynchronizeSchedule: everyMinute(t),
		TestSchedule:        never(t),
		SynchronizeTimeout:  time.Second,
		TestTimeout:         time.Second,
		Daemon:              cron.NewDaemon(),
		LocalDnsSource:      &fakeDnsSource{result: healthyResult()},
		RemoteDnsSource:     &fakeDnsSource{result: healthyResult()},
		Notify:              func(old, new *model.ResourceSynchronizationResult) { notified <- new },
	})
	s.Start(true)

	s.Run(time.Now().Truncate(time.Minute))

	select {
	case r := <-notified:
		assert.Equal(t, status.Healthy, r.ResourceStatus())
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not notify")
	}

	st, _ := s.State()
	assert.Equal(t, status.SchedulerSleeping, st)
}

func TestSchedulerGatedByInconsistentResult(t *testing.T) {
	synchronizer := &fakeSynchronizer{canSync: true, result: successStep()}
	s := New(Config{
		Resource:            model.Resource{Enabled: true},
		Local:               model.ResourceNode{Node: model.Node{Enabled: true}},
		Remote:              model.ResourceNode{Node: model.Node{Enabled: true}},
		Synchronizer:        synchronizer,
		SynchronizeSchedule: everyMinute(t),
		TestSchedule:        everyMinute(t),
		SynchronizeTimeout:  time.Second,
		TestTimeout:         time.Second,
		Daemon:              cron.NewDaemon(),
		LocalDnsSource:      &fakeDnsSource{result: inconsistentResult()},
		RemoteDnsSource:     &fakeDnsSource{result: healthyResult()},
	})
	s.Start(true)

	s.Run(time.Now().Truncate(time.Minute))

	st, _ := s.State()
	assert.Equal(t, status.SchedulerSleeping, st)
	assert.Nil(t, s.LastResult())
}

func TestSchedulerTimesOutOnSlowSynchronizer(t *testing.T) {
	notified := make(chan *model.ResourceSynchronizationResult, 1)
	synchronizer := &fakeSynchronizer{canSync: true, result: successStep(), delay: 200 * time.Millisecond}
	s := New(Config{
		Resource:            model.Resource{Enabled: true},
		Local:               model.ResourceNode{Node: model.Node{Enabled: true}},
		Remote:              model.ResourceNode{Node: model.Node{Enabled: true}},
		Synchronizer:        synchronizer,
		SynchronizeSchedule: everyMinute(t),
		TestSchedule:        never(t),
		SynchronizeTimeout:  10 * time.Millisecond,
		TestTimeout:         10 * time.Millisecond,
		Daemon:              cron.NewDaemon(),
		LocalDnsSource:      &fakeDnsSource{result: healthyResult()},
		RemoteDnsSource:     &fakeDnsSource{result: healthyResult()},
		Notify:              func(old, new *model.ResourceSynchronizationResult) { notified <- new },
	})
	s.Start(true)

	s.Run(time.Now().Truncate(time.Minute))

	select {
	case r := <-notified:
		assert.Equal(t, status.Error, r.ResourceStatus())
		assert.Equal(t, "future.get", r.Steps[0].Description)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not notify")
	}
}

func TestSchedulerStopIsTerminal(t *testing.T) {
	s := New(Config{
		Resource:            model.Resource{Enabled: true},
		Local:               model.ResourceNode{Node: model.Node{Enabled: true}},
		Remote:              model.ResourceNode{Node: model.Node{Enabled: true}},
		SynchronizeSchedule: everyMinute(t),
		TestSchedule:        never(t),
		Daemon:              cron.NewDaemon(),
		LocalDnsSource:      &fakeDnsSource{result: healthyResult()},
		RemoteDnsSource:     &fakeDnsSource{result: healthyResult()},
	})
	s.Start(true)
	s.Stop()

	s.Run(time.Now().Truncate(time.Minute))

	st, _ := s.State()
	assert.Equal(t, status.SchedulerStopped, st)
}
