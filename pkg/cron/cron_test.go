package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleIsScheduledEveryMinute(t *testing.T) {
	s, err := Parse("* * * * *")
	require.NoError(t, err)

	tick := time.Date(2026, 8, 3, 12, 30, 0, 0, time.UTC)
	assert.True(t, s.IsScheduled(tick))
}

func TestScheduleIsScheduledSpecificMinute(t *testing.T) {
	s, err := Parse("15 * * * *")
	require.NoError(t, err)

	assert.True(t, s.IsScheduled(time.Date(2026, 8, 3, 12, 15, 0, 0, time.UTC)))
	assert.False(t, s.IsScheduled(time.Date(2026, 8, 3, 12, 16, 0, 0, time.UTC)))
}

func TestMultiScheduleFiresOnEither(t *testing.T) {
	sync, err := Parse("0 3 * * *")
	require.NoError(t, err)
	test, err := Parse("0 4 * * *")
	require.NoError(t, err)

	m := MultiSchedule{Schedules: []Schedule{sync, test}}

	assert.True(t, m.IsScheduled(time.Date(2026, 8, 3, 3, 0, 0, 0, time.UTC)))
	assert.True(t, m.IsScheduled(time.Date(2026, 8, 3, 4, 0, 0, 0, time.UTC)))
	assert.False(t, m.IsScheduled(time.Date(2026, 8, 3, 5, 0, 0, 0, time.UTC)))
}

func TestDaemonFiresRegisteredJobs(t *testing.T) {
	d := NewDaemon()
	minuteBoundary := time.Date(2026, 8, 3, 12, 1, 0, 0, time.UTC)
	base := minuteBoundary.Add(-10 * time.Millisecond)
	d.now = func() time.Time { return base }

	fired := make(chan time.Time, 1)
	d.Register(jobFunc(func(tick time.Time) { fired <- tick }))

	d.Start()
	defer d.Stop()

	select {
	case tick := <-fired:
		assert.Equal(t, minuteBoundary, tick)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}
}

type jobFunc func(tick time.Time)

func (f jobFunc) Run(tick time.Time) { f(tick) }
