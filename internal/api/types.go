package api

import (
	stdcontext "context"
	"errors"
	"fmt"
)

// AllPrograms addresses every program in start, stop and restart requests.
const AllPrograms = "all"

var (
	ErrNotFound       = errors.New("program not found")
	ErrShuttingDown   = errors.New("supervisor is shutting down")
	ErrInvalidProgram = errors.New("invalid program name")
	ErrSpawnFailed    = errors.New("spawn failed")
)

// NotFoundError reports a request for a program that is not configured.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Program '%s' not found", e.Name)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ProgramStatus describes the runtime state of a single program.
type ProgramStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
	// Uptime is in whole seconds; zero unless the program is RUNNING.
	Uptime       int64 `json:"uptime"`
	RestartCount int   `json:"restart_count"`
	PID          int   `json:"pid,omitempty"`
}

// StatusReport lists every configured program in name order.
type StatusReport struct {
	Programs []ProgramStatus `json:"programs"`
}

// ActionResult is the reply to start, stop and restart requests.
type ActionResult struct {
	Result string `json:"result"`
}

// ResultOK is the result of a successful action.
const ResultOK = "OK"

// Controller exposes supervisor operations required by control servers.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
	Start(stdcontext.Context, string) (*ActionResult, error)
	Stop(stdcontext.Context, string) (*ActionResult, error)
	Restart(stdcontext.Context, string) (*ActionResult, error)
}
