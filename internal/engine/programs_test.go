package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Paintersrp/procsup/internal/api"
	"github.com/Paintersrp/procsup/internal/config"
	"github.com/Paintersrp/procsup/internal/program"
)

func TestProgramsResolve(t *testing.T) {
	programs := NewPrograms([]*program.Program{
		program.New(config.Program{Name: "worker"}, program.Options{}),
		program.New(config.Program{Name: "api"}, program.Options{}),
	})

	all, err := programs.Resolve(api.AllPrograms)
	if err != nil {
		t.Fatalf("resolve all: %v", err)
	}
	if len(all) != 2 || all[0].Name() != "api" || all[1].Name() != "worker" {
		t.Fatalf("unexpected order for all")
	}

	one, err := programs.Resolve(" worker ")
	if err != nil || len(one) != 1 || one[0].Name() != "worker" {
		t.Fatalf("unexpected resolve result %v %v", one, err)
	}

	if _, err := programs.Resolve("missing"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := programs.Resolve(""); !errors.Is(err, api.ErrInvalidProgram) {
		t.Fatalf("expected invalid program, got %v", err)
	}
}

func TestBeginShutdownWaitsForMutations(t *testing.T) {
	programs := NewPrograms(nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = programs.Mutate(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	closed := make(chan struct{})
	go func() {
		programs.BeginShutdown()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatalf("shutdown must wait for the running mutation")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("shutdown did not complete")
	}

	if err := programs.Mutate(func() error { return nil }); !errors.Is(err, api.ErrShuttingDown) {
		t.Fatalf("expected shutting down, got %v", err)
	}
	if !programs.Closing() {
		t.Fatalf("expected closing")
	}
}

func TestSleepWithContext(t *testing.T) {
	if err := sleepWithContext(context.Background(), 0); err != nil {
		t.Fatalf("zero delay: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepWithContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
