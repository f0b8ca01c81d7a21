package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// SyncState represents what the poller is doing right now.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncSleeping
	SyncStopped
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncSleeping:
		return "sleeping"
	case SyncStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SyncStatus is a snapshot of the poller's progress.
type SyncStatus struct {
	State     SyncState
	Cycles    int
	LastRun   time.Time
	LastStats CycleStats
	NextRun   time.Time
}

// RunRecorder persists the history of sync cycles.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
}

// Poller drives the engine: once in one-shot mode, or repeatedly with a
// pause between cycles until its context is cancelled.
type Poller struct {
	engine   *Engine
	mode     model.RunMode
	interval time.Duration
	schedule cron.Schedule
	runs     RunRecorder
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	mu     gosync.Mutex
	status SyncStatus
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the pause between continuous cycles.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithSchedule makes continuous mode wait for the next firing of s
// instead of a fixed interval.
func WithSchedule(s cron.Schedule) PollerOption {
	return func(p *Poller) { p.schedule = s }
}

// WithRunRecorder records a history row for every cycle.
func WithRunRecorder(r RunRecorder) PollerOption {
	return func(p *Poller) { p.runs = r }
}

// WithPollerLogger sets the poller's logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// WithPollerClock replaces time.Now for run timestamps and schedule math.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

// NewPoller creates a poller for engine in the given mode.
func NewPoller(engine *Engine, mode model.RunMode, options ...PollerOption) *Poller {
	p := &Poller{
		engine:  engine,
		mode:    mode,
		logger:  engine.logger,
		metrics: engine.metrics,
		now:     time.Now,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// ModeFor selects the run mode implied by cfg. forceOnce overrides a
// continuous configuration.
func ModeFor(cfg *model.Config, forceOnce bool) model.RunMode {
	if forceOnce || cfg.FetchAll() {
		return model.RunModeOneShot
	}
	return model.RunModeContinuous
}

// Run executes cycles until the mode says stop or ctx is cancelled.
// Cancellation is observed before each cycle and while sleeping; a cycle
// that has started runs to its end.
func (p *Poller) Run(ctx context.Context) error {
	defer p.setState(SyncStopped)

	for {
		if ctx.Err() != nil {
			p.logger.Info("sync stopped", "cycles", p.Status().Cycles)
			return nil
		}

		p.runCycle(ctx)

		if p.mode == model.RunModeOneShot {
			return nil
		}

		wait := p.nextWait()
		p.mu.Lock()
		p.status.State = SyncSleeping
		p.status.NextRun = p.now().Add(wait)
		p.mu.Unlock()

		p.logger.Info("sleeping until next cycle", "wait", wait.String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("sync stopped", "cycles", p.Status().Cycles)
			return nil
		case <-timer.C:
		}
	}
}

// runCycle runs one engine cycle with cancellation detached so that stages
// are not cut short, and records it in the run history.
func (p *Poller) runCycle(ctx context.Context) {
	p.setState(SyncRunning)

	work := context.WithoutCancel(ctx)
	run := &model.Run{
		ID:        uuid.NewString(),
		Mode:      p.mode,
		StartedAt: p.now().UTC(),
	}
	log := p.logger.With("run", run.ID)

	if p.runs != nil {
		if err := p.runs.CreateRun(work, run); err != nil {
			log.Error("recording run start", "error", err)
		}
	}

	log.Info("cycle started", "mode", p.mode)
	start := time.Now()
	stats := p.engine.RunCycle(work)
	elapsed := time.Since(start)

	p.metrics.cycles.Inc()
	p.metrics.cycleDuration.Observe(elapsed.Seconds())

	finished := p.now().UTC()
	run.FinishedAt = &finished
	run.Emitted = stats.Emitted
	run.Failed = stats.Failed
	run.Skipped = stats.Skipped
	run.StageErrs = stats.StageErrors

	if p.runs != nil {
		if err := p.runs.FinishRun(work, run); err != nil {
			log.Error("recording run finish", "error", err)
		}
	}

	log.Info("cycle finished",
		"emitted", stats.Emitted,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"stage_errors", stats.StageErrors,
		"duration", elapsed.String(),
	)

	p.mu.Lock()
	p.status.State = SyncIdle
	p.status.Cycles++
	p.status.LastRun = finished
	p.status.LastStats = stats
	p.mu.Unlock()
}

// nextWait is the pause before the next continuous cycle.
func (p *Poller) nextWait() time.Duration {
	if p.schedule == nil {
		return p.interval
	}
	now := p.now()
	wait := p.schedule.Next(now).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Status returns a snapshot of the poller's progress.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) setState(state SyncState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = state
}
