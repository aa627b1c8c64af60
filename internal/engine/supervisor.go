package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Paintersrp/procsup/internal/backoff"
	"github.com/Paintersrp/procsup/internal/config"
	"github.com/Paintersrp/procsup/internal/logging"
	"github.com/Paintersrp/procsup/internal/metrics"
	"github.com/Paintersrp/procsup/internal/procgroup"
	"github.com/Paintersrp/procsup/internal/program"
)

const eventBuffer = 256

// Server is the control endpoint run alongside the supervisor.
type Server interface {
	Listen() error
	Run(ctx context.Context) error
}

// Options tunes a Supervisor. Zero values select the defaults.
type Options struct {
	Logger          *slog.Logger
	MonitorInterval time.Duration
	StartGrace      time.Duration
	StopTimeout     time.Duration
	Schedule        backoff.Schedule

	// Clock reports the current time to programs. Defaults to time.Now.
	Clock func() time.Time

	// OnReady is called once the control server is listening and autostart
	// has completed.
	OnReady func()
}

// Supervisor owns the process group container, the programs, the monitor
// and the control server for the lifetime of the daemon.
type Supervisor struct {
	logger    *slog.Logger
	container *procgroup.Container
	programs  *Programs
	monitor   *Monitor
	events    chan program.Event
	onReady   func()

	runOnce sync.Once
}

// New creates the container and the programs described by cfg. No process
// is spawned until Run.
func New(cfg *config.Config, opts Options) (*Supervisor, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("engine")
	}

	container, err := procgroup.New(procgroup.Options{
		Cgroup: cfg.Group.Cgroup,
		Logger: logger.With("component", "procgroup"),
	})
	if err != nil {
		return nil, err
	}

	events := make(chan program.Event, eventBuffer)
	defs := cfg.ProgramsSorted()
	list := make([]*program.Program, 0, len(defs))
	for _, def := range defs {
		list = append(list, program.New(*def, program.Options{
			Group:       container,
			Logger:      logger,
			Events:      events,
			Schedule:    opts.Schedule,
			StartGrace:  opts.StartGrace,
			StopTimeout: opts.StopTimeout,
			Clock:       opts.Clock,
		}))
		metrics.ResetProgram(def.Name)
		metrics.SetProgramUp(def.Name, false)
	}
	programs := NewPrograms(list)

	return &Supervisor{
		logger:    logger,
		container: container,
		programs:  programs,
		monitor:   NewMonitor(programs, opts.MonitorInterval, logger, events),
		events:    events,
		onReady:   opts.OnReady,
	}, nil
}

// Programs exposes the supervised programs.
func (s *Supervisor) Programs() *Programs {
	return s.programs
}

// Run starts the control server, autostarts programs and monitors them until
// ctx is cancelled or the server fails. On return every program has been
// stopped and the container destroyed. Run may only be called once.
func (s *Supervisor) Run(ctx context.Context, srv Server) error {
	err := errors.New("supervisor already ran")
	s.runOnce.Do(func() {
		err = s.run(ctx, srv)
	})
	return err
}

func (s *Supervisor) run(ctx context.Context, srv Server) error {
	consumerDone := make(chan struct{})
	consumerStop := make(chan struct{})
	go s.consumeEvents(consumerStop, consumerDone)
	defer func() {
		close(consumerStop)
		<-consumerDone
	}()

	if srv != nil {
		if err := srv.Listen(); err != nil {
			s.destroy()
			return fmt.Errorf("start control server: %w", err)
		}
	}

	serverCtx, cancelServer := context.WithCancel(context.Background())
	defer cancelServer()
	serverErr := make(chan error, 1)
	if srv != nil {
		go func() {
			serverErr <- srv.Run(serverCtx)
		}()
	}

	s.logger.Info("Supervisor started", "programs", s.programs.Len())
	s.autostart()

	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		s.monitor.Run(monitorCtx)
	}()
	if s.onReady != nil {
		s.onReady()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown requested")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("control server: %w", err)
			s.logger.Error("Control server failed", "error", err)
		}
		srv = nil
	}

	cancelMonitor()
	<-monitorDone

	s.programs.BeginShutdown()
	s.stopAll()
	s.destroy()

	if srv != nil {
		cancelServer()
		if err := <-serverErr; err != nil && runErr == nil {
			runErr = fmt.Errorf("control server: %w", err)
		}
	}
	s.logger.Info("Supervisor stopped")
	return runErr
}

func (s *Supervisor) autostart() {
	for _, p := range s.programs.All() {
		if !p.Autostart() {
			continue
		}
		err := s.programs.Mutate(p.Start)
		if err != nil {
			s.logger.Error("Autostart failed", "program", p.Name(), "error", err)
		}
	}
}

// stopAll stops every program concurrently so the total shutdown time is
// bounded by a single stop timeout.
func (s *Supervisor) stopAll() {
	var wg sync.WaitGroup
	for _, p := range s.programs.All() {
		wg.Add(1)
		go func(p *program.Program) {
			defer wg.Done()
			p.Stop()
		}(p)
	}
	wg.Wait()
}

func (s *Supervisor) destroy() {
	if err := s.container.Destroy(); err != nil {
		s.logger.Warn("Failed to destroy process group container", "error", err)
	}
}

func (s *Supervisor) consumeEvents(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			for {
				select {
				case ev := <-s.events:
					s.recordEvent(ev)
				default:
					return
				}
			}
		case ev := <-s.events:
			s.recordEvent(ev)
		}
	}
}

func (s *Supervisor) recordEvent(ev program.Event) {
	switch ev.Type {
	case program.EventRunning:
		metrics.SetProgramUp(ev.Program, true)
	case program.EventExited, program.EventStopped:
		metrics.SetProgramUp(ev.Program, false)
		metrics.ObserveRunDuration(ev.Program, ev.Uptime)
	case program.EventSpawnFailed:
		metrics.SetProgramUp(ev.Program, false)
		metrics.IncrementSpawnFailure(ev.Program)
	}
	s.logger.Debug("Program event",
		"program", ev.Program,
		"type", string(ev.Type),
		"pid", ev.PID,
		"attempt", ev.Attempt,
	)
}
