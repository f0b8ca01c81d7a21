package sync

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/helpdesk-sync/internal/model"
	"github.com/nhle/helpdesk-sync/internal/source"
)

// memoryRuns keeps run history in memory and can hook the end of a run.
type memoryRuns struct {
	created  []model.Run
	finished []model.Run
	onFinish func()
}

func (m *memoryRuns) CreateRun(_ context.Context, run *model.Run) error {
	m.created = append(m.created, *run)
	return nil
}

func (m *memoryRuns) FinishRun(_ context.Context, run *model.Run) error {
	m.finished = append(m.finished, *run)
	if m.onFinish != nil {
		m.onFinish()
	}
	return nil
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, model.RunModeOneShot, ModeFor(&model.Config{TicketsLastUpdatedNDaysAgo: -1}, false))
	assert.Equal(t, model.RunModeContinuous, ModeFor(&model.Config{TicketsLastUpdatedNDaysAgo: 1}, false))
	assert.Equal(t, model.RunModeOneShot, ModeFor(&model.Config{TicketsLastUpdatedNDaysAgo: 1}, true))
}

func TestOneShotRunsOnce(t *testing.T) {
	src := fullSourceFrom(time.Unix(0, 0))
	snk := &recordingSink{}
	runs := &memoryRuns{}
	opts := allOptions()
	opts.WindowDays = model.FetchAllWindow

	p := NewPoller(newTestEngine(src, snk, opts), model.RunModeOneShot, WithRunRecorder(runs))
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, runs.created, 1)
	require.Len(t, runs.finished, 1)
	assert.Equal(t, runs.created[0].ID, runs.finished[0].ID)
	assert.Equal(t, model.RunModeOneShot, runs.finished[0].Mode)
	assert.Equal(t, 8, runs.finished[0].Emitted)
	require.NotNil(t, runs.finished[0].FinishedAt)

	status := p.Status()
	assert.Equal(t, 1, status.Cycles)
	assert.Equal(t, SyncStopped, status.State)
	assert.Equal(t, 8, status.LastStats.Emitted)
	assert.Equal(t, []source.Cursor{"0"}, src.requested)
	assert.Len(t, snk.ofType(model.RecordTypeTicket), 1)
}

func TestContinuousStopsDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := &memoryRuns{onFinish: cancel}
	p := NewPoller(
		newTestEngine(fullSource(), &recordingSink{}, allOptions()),
		model.RunModeContinuous,
		WithInterval(time.Hour),
		WithRunRecorder(runs),
	)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop after cancellation")
	}

	assert.Len(t, runs.finished, 1)
	assert.Equal(t, 1, p.Status().Cycles)
}

func TestCancelledCycleRunsToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	snk := &recordingSink{}
	src := fullSource()

	// cancel as soon as the first record is emitted
	cancelling := &cancelOnEmit{recordingSink: snk, cancel: cancel}
	p := NewPoller(newTestEngine(src, cancelling, allOptions()), model.RunModeContinuous)

	require.NoError(t, p.Run(ctx))
	assert.Len(t, snk.records, 8)
	assert.Equal(t, 1, p.Status().Cycles)
}

type cancelOnEmit struct {
	*recordingSink
	cancel context.CancelFunc
}

func (c *cancelOnEmit) Emit(ctx context.Context, rec *model.Record) error {
	c.cancel()
	return c.recordingSink.Emit(ctx, rec)
}

func TestContinuousRepeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := &memoryRuns{}
	runs.onFinish = func() {
		if len(runs.finished) == 3 {
			cancel()
		}
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	engine := NewEngine(fullSource(), &recordingSink{}, allOptions(),
		WithClock(func() time.Time { return fixedNow }),
		WithMetrics(metrics),
	)
	p := NewPoller(engine, model.RunModeContinuous, WithRunRecorder(runs))

	require.NoError(t, p.Run(ctx))

	assert.Len(t, runs.finished, 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.cycles))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.records.WithLabelValues("ticket")))
	assert.Equal(t, float64(9), testutil.ToFloat64(metrics.records.WithLabelValues("comment")))
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runs := &memoryRuns{}
	p := NewPoller(newTestEngine(fullSource(), &recordingSink{}, allOptions()),
		model.RunModeContinuous, WithRunRecorder(runs))

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, runs.created)
}

func TestNextWaitFollowsSchedule(t *testing.T) {
	schedule, err := cron.ParseStandard("0 * * * *")
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 15, 0, 0, time.UTC)
	p := NewPoller(
		newTestEngine(&fakeSource{}, &recordingSink{}, Options{}),
		model.RunModeContinuous,
		WithInterval(time.Minute),
		WithSchedule(schedule),
		WithPollerClock(func() time.Time { return now }),
	)

	assert.Equal(t, 45*time.Minute, p.nextWait())

	p.schedule = nil
	assert.Equal(t, time.Minute, p.nextWait())
}
