package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Paintersrp/procsup/internal/api"
	"github.com/Paintersrp/procsup/internal/metrics"
	"github.com/Paintersrp/procsup/internal/program"
)

// DefaultMonitorInterval is the period between monitor passes.
const DefaultMonitorInterval = time.Second

// Monitor periodically reaps exited programs and schedules their automatic
// restarts. Each pending restart waits in its own goroutine so a long backoff
// never delays other programs.
type Monitor struct {
	programs *Programs
	interval time.Duration
	logger   *slog.Logger
	events   chan<- program.Event

	sleep func(context.Context, time.Duration) error

	wg sync.WaitGroup
}

// NewMonitor constructs a monitor over programs.
func NewMonitor(programs *Programs, interval time.Duration, logger *slog.Logger, events chan<- program.Event) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		programs: programs,
		interval: interval,
		logger:   logger,
		events:   events,
		sleep:    sleepWithContext,
	}
}

// Run ticks until ctx is cancelled, then waits for pending restarts to
// observe the cancellation.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer m.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs a single monitor pass.
func (m *Monitor) Tick(ctx context.Context) {
	for _, p := range m.programs.All() {
		if ctx.Err() != nil {
			return
		}
		exit, ok := p.Reap()
		if !ok {
			continue
		}
		if !p.Autorestart() {
			m.logger.Info("Program exited; autorestart disabled", "program", p.Name())
			continue
		}
		m.wg.Add(1)
		go m.restart(ctx, p, exit)
	}
}

// Wait blocks until every scheduled restart has finished.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) restart(ctx context.Context, p *program.Program, exit program.Exit) {
	defer m.wg.Done()

	m.logger.Info("Scheduling restart", "program", p.Name(), "delay", exit.Delay)
	program.Emit(m.events, program.Event{
		Program: p.Name(),
		Type:    program.EventRestartScheduled,
		Delay:   exit.Delay,
	})

	if err := m.sleep(ctx, exit.Delay); err != nil {
		return
	}

	var restarted bool
	err := m.programs.Mutate(func() error {
		var err error
		restarted, err = p.RestartAfterExit(exit.Generation)
		return err
	})
	switch {
	case errors.Is(err, api.ErrShuttingDown):
		return
	case !restarted:
		m.logger.Debug("Restart skipped; program changed state", "program", p.Name())
		return
	}
	metrics.IncrementProgramRestart(p.Name())
	if err != nil {
		m.logger.Error("Restart failed", "program", p.Name(), "error", err)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
