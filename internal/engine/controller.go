package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Paintersrp/procsup/internal/api"
	"github.com/Paintersrp/procsup/internal/program"
)

var _ api.Controller = (*Supervisor)(nil)

// Status reports every program in name order. It keeps answering during
// shutdown.
func (s *Supervisor) Status(ctx context.Context) (*api.StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := s.programs.All()
	report := &api.StatusReport{Programs: make([]api.ProgramStatus, 0, len(all))}
	for _, p := range all {
		st := p.Snapshot()
		report.Programs = append(report.Programs, api.ProgramStatus{
			Name:         st.Name,
			State:        string(st.State),
			Uptime:       int64(st.Uptime / time.Second),
			RestartCount: st.RestartCount,
			PID:          st.PID,
		})
	}
	return report, nil
}

// Start launches the named program, or every program for "all".
func (s *Supervisor) Start(ctx context.Context, name string) (*api.ActionResult, error) {
	return s.apply(ctx, name, "start", (*program.Program).Start)
}

// Stop stops the named program, or every program for "all".
func (s *Supervisor) Stop(ctx context.Context, name string) (*api.ActionResult, error) {
	return s.apply(ctx, name, "stop", func(p *program.Program) error {
		p.Stop()
		return nil
	})
}

// Restart stops and starts the named program, or every program for "all".
func (s *Supervisor) Restart(ctx context.Context, name string) (*api.ActionResult, error) {
	return s.apply(ctx, name, "restart", (*program.Program).Restart)
}

func (s *Supervisor) apply(ctx context.Context, name, action string, fn func(*program.Program) error) (*api.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	targets, err := s.programs.Resolve(name)
	if err != nil {
		return nil, err
	}

	err = s.programs.Mutate(func() error {
		if len(targets) == 1 {
			return fn(targets[0])
		}
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for _, p := range targets {
			wg.Add(1)
			go func(p *program.Program) {
				defer wg.Done()
				if err := fn(p); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}(p)
		}
		wg.Wait()
		return errors.Join(errs...)
	})
	if err != nil {
		if errors.Is(err, api.ErrShuttingDown) {
			return nil, err
		}
		s.logger.Error("Control action failed", "action", action, "program", name, "error", err)
		var spawnErr *program.SpawnError
		if errors.As(err, &spawnErr) {
			return nil, fmt.Errorf("%w: %w", api.ErrSpawnFailed, err)
		}
		return nil, err
	}
	s.logger.Info("Control action applied", "action", action, "program", name)
	return &api.ActionResult{Result: api.ResultOK}, nil
}
