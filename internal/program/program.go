// Package program implements the lifecycle of a single supervised program:
// spawning its process, tracking the STOPPED/STARTING/RUNNING state machine,
// owning its log files and stopping it within a bounded time.
package program

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/Paintersrp/procsup/internal/backoff"
	"github.com/Paintersrp/procsup/internal/config"
	"github.com/Paintersrp/procsup/internal/procgroup"
)

const (
	// DefaultStartGrace is how long a process must survive to count as running.
	DefaultStartGrace = time.Second
	// DefaultStopTimeout bounds the graceful part of Stop.
	DefaultStopTimeout = 5 * time.Second

	// waitDelay bounds how long Wait keeps copying output after the process
	// exited while a descendant still holds the pipe open.
	waitDelay = time.Second
)

// State is the lifecycle state of a program.
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
)

// SpawnError reports a program whose process could not be launched.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn program %s: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Group is the container every spawned process must join.
type Group interface {
	Prepare(cmd *exec.Cmd)
	Join(proc *os.Process) error
	Leave(pid int)
}

// Options tunes a Program. Zero values select the defaults.
type Options struct {
	Group       Group
	Logger      *slog.Logger
	Events      chan<- Event
	Schedule    backoff.Schedule
	StartGrace  time.Duration
	StopTimeout time.Duration

	// Stdout and Stderr receive the output of streams without a log file.
	// They default to the supervisor's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// Clock reports the current time for start times and uptimes.
	Clock func() time.Time
}

// Status is a point-in-time view of a program.
type Status struct {
	Name         string
	State        State
	PID          int
	Uptime       time.Duration
	RestartCount int
	BackoffIndex int
}

// Exit describes a process exit observed by Reap.
type Exit struct {
	// Generation identifies the lifecycle the exit belongs to. An automatic
	// restart must present it to RestartAfterExit.
	Generation uint64
	// Delay is the backoff to wait before restarting.
	Delay time.Duration
}

// Program supervises one configured command.
type Program struct {
	def         config.Program
	group       Group
	logger      *slog.Logger
	events      chan<- Event
	schedule    backoff.Schedule
	startGrace  time.Duration
	stopTimeout time.Duration
	stdout      io.Writer
	stderr      io.Writer
	now         func() time.Time

	// opMu serialises Start, Stop, Restart and RestartAfterExit.
	opMu sync.Mutex

	// mu guards the fields below and is never held while waiting on a
	// process.
	mu           sync.Mutex
	state        State
	proc         *process
	startTime    time.Time
	restartCount int
	backoffIndex int
	generation   uint64
	stopping     bool
	// exitPending records an exit that the monitor has not consumed yet.
	exitPending bool
}

type process struct {
	cmd  *exec.Cmd
	logs *logFiles
	done chan struct{}
	err  error
}

func (h *process) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *process) pid() int {
	if h == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// New constructs a stopped program for def.
func New(def config.Program, opts Options) *Program {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	schedule := opts.Schedule
	if len(schedule) == 0 {
		schedule = backoff.Default()
	}
	grace := opts.StartGrace
	if grace <= 0 {
		grace = DefaultStartGrace
	}
	stopTimeout := opts.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Program{
		def:         def,
		group:       opts.Group,
		logger:      logger.With("program", def.Name),
		events:      opts.Events,
		schedule:    schedule,
		startGrace:  grace,
		stopTimeout: stopTimeout,
		stdout:      stdout,
		stderr:      stderr,
		now:         now,
		state:       StateStopped,
	}
}

// Name returns the configured program name.
func (p *Program) Name() string {
	return p.def.Name
}

// Autostart reports whether the program starts with the supervisor.
func (p *Program) Autostart() bool {
	return p.def.Autostart
}

// Autorestart reports whether exits are followed by an automatic restart.
func (p *Program) Autorestart() bool {
	return p.def.Autorestart
}

// Start launches the program. It is a no-op while the program is starting or
// running.
func (p *Program) Start() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.start()
}

// Stop terminates the program, waiting up to the stop timeout before killing
// its process group. It is a no-op when the program is stopped, except that
// any automatic restart pending for it is cancelled.
func (p *Program) Stop() {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.stop()
}

// Restart stops the program and starts it again.
func (p *Program) Restart() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.stop()
	return p.start()
}

// IsAlive reports whether the program has a process that has not exited.
func (p *Program) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proc != nil && !p.proc.exited()
}

// Snapshot returns the current status. A running program whose process has
// exited but has not been reaped yet reports STOPPED.
func (p *Program) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Name:         p.def.Name,
		State:        p.state,
		RestartCount: p.restartCount,
		BackoffIndex: p.backoffIndex,
	}
	if p.proc != nil && p.proc.exited() && p.state == StateRunning {
		st.State = StateStopped
	}
	if st.State != StateStopped {
		st.PID = p.proc.pid()
	}
	if st.State == StateRunning {
		if up := p.now().Sub(p.startTime); up > 0 {
			st.Uptime = up
		}
	}
	return st
}

// Reap is called by the monitor. It finalises a running program whose process
// exited and reports an exit that has not been consumed yet. Programs that
// are starting or being stopped are never reaped.
func (p *Program) Reap() (Exit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateStarting || p.stopping {
		return Exit{}, false
	}
	if p.state == StateRunning && p.proc != nil && p.proc.exited() {
		p.collect()
	}
	if !p.exitPending {
		return Exit{}, false
	}
	p.exitPending = false
	return Exit{Generation: p.generation, Delay: p.schedule.Delay(p.backoffIndex)}, true
}

// RestartAfterExit performs the automatic restart that follows an exit
// reported by Reap. It does nothing and returns false when the program was
// started or stopped since the exit was observed. A failed spawn leaves the
// exit pending so the next monitor pass retries with the advanced backoff.
func (p *Program) RestartAfterExit(generation uint64) (bool, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	if p.generation != generation || p.state != StateStopped {
		p.mu.Unlock()
		return false, nil
	}
	p.restartCount++
	p.backoffIndex = p.schedule.Next(p.backoffIndex)
	attempt := p.restartCount
	p.mu.Unlock()

	p.logger.Info("Restarting program", "attempt", attempt)
	if err := p.start(); err != nil {
		p.mu.Lock()
		if p.generation == generation && p.state == StateStopped {
			p.exitPending = true
		}
		p.mu.Unlock()
		return true, err
	}
	return true, nil
}

// start spawns the process. Callers hold opMu.
func (p *Program) start() error {
	p.mu.Lock()
	if p.proc != nil && p.state == StateRunning && p.proc.exited() {
		p.collect()
	}
	if p.state != StateStopped {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	proc, err := p.spawn()
	if err != nil {
		p.logger.Error("Failed to start program", "error", err)
		Emit(p.events, Event{Program: p.def.Name, Type: EventSpawnFailed, Err: err, Message: err.Error()})
		return err
	}

	p.mu.Lock()
	p.generation++
	generation := p.generation
	p.proc = proc
	p.state = StateStarting
	p.startTime = p.now()
	p.exitPending = false
	p.mu.Unlock()

	pid := proc.pid()
	p.logger.Info("Program starting", "pid", pid)
	Emit(p.events, Event{Program: p.def.Name, Type: EventStarting, PID: pid})

	go p.confirm(generation, proc)
	return nil
}

// spawn opens the log files, launches the command and joins it to the
// container. Every resource acquired is released on failure.
func (p *Program) spawn() (*process, error) {
	if len(p.def.Args) == 0 {
		return nil, &SpawnError{Program: p.def.Name, Err: errors.New("empty command")}
	}

	logs := &logFiles{}
	stdout, err := openLog(p.def.StdoutLogfile, int64(p.def.StdoutLogfileMaxBytes), p.def.StdoutLogfileBackups)
	if err != nil {
		return nil, &SpawnError{Program: p.def.Name, Err: err}
	}
	logs.stdout = stdout
	if !p.def.RedirectStderr {
		stderr, err := openLog(p.def.StderrLogfile, int64(p.def.StderrLogfileMaxBytes), p.def.StderrLogfileBackups)
		if err != nil {
			_ = logs.Close()
			return nil, &SpawnError{Program: p.def.Name, Err: err}
		}
		logs.stderr = stderr
	}

	cmd := exec.Command(p.def.Args[0], p.def.Args[1:]...)
	cmd.Dir = p.def.Directory
	cmd.Env = append(os.Environ(), p.def.EnvironmentList()...)
	cmd.Stdout = p.stdout
	if logs.stdout != nil {
		cmd.Stdout = logs.stdout
	}
	switch {
	case p.def.RedirectStderr:
		cmd.Stderr = cmd.Stdout
	case logs.stderr != nil:
		cmd.Stderr = logs.stderr
	default:
		cmd.Stderr = p.stderr
	}
	cmd.WaitDelay = waitDelay
	if p.group != nil {
		p.group.Prepare(cmd)
	}

	if err := cmd.Start(); err != nil {
		_ = logs.Close()
		return nil, &SpawnError{Program: p.def.Name, Err: err}
	}
	if p.group != nil {
		if err := p.group.Join(cmd.Process); err != nil {
			_ = procgroup.Kill(cmd.Process)
			_ = cmd.Wait()
			_ = logs.Close()
			return nil, &SpawnError{Program: p.def.Name, Err: err}
		}
	}

	proc := &process{cmd: cmd, logs: logs, done: make(chan struct{})}
	go func() {
		proc.err = cmd.Wait()
		close(proc.done)
	}()
	return proc, nil
}

// confirm settles the STARTING state once the grace period elapsed.
func (p *Program) confirm(generation uint64, proc *process) {
	timer := time.NewTimer(p.startGrace)
	defer timer.Stop()
	<-timer.C

	p.mu.Lock()
	if p.generation != generation || p.proc != proc || p.state != StateStarting {
		p.mu.Unlock()
		return
	}
	if !proc.exited() {
		p.state = StateRunning
		p.backoffIndex = 0
		p.mu.Unlock()
		p.logger.Info("Program running", "pid", proc.pid())
		Emit(p.events, Event{Program: p.def.Name, Type: EventRunning, PID: proc.pid()})
		return
	}
	p.collect()
	p.mu.Unlock()
}

// collect finalises an exited process. Callers hold mu.
func (p *Program) collect() {
	proc := p.proc
	ran := p.now().Sub(p.startTime)
	p.release()
	p.exitPending = true
	attempt := p.restartCount
	p.logger.Warn("Program exited", "pid", proc.pid(), "error", exitDetail(proc.err))
	Emit(p.events, Event{Program: p.def.Name, Type: EventExited, PID: proc.pid(), Attempt: attempt, Uptime: ran, Err: proc.err})
}

// release closes the log files and clears the process handle. Callers hold
// mu.
func (p *Program) release() {
	if p.proc != nil {
		if err := p.proc.logs.Close(); err != nil {
			p.logger.Warn("Failed to close log files", "error", err)
		}
		if p.group != nil {
			p.group.Leave(p.proc.pid())
		}
	}
	p.proc = nil
	p.state = StateStopped
	p.startTime = time.Time{}
}

// stop terminates the process. Callers hold opMu.
func (p *Program) stop() {
	p.mu.Lock()
	p.generation++
	p.exitPending = false
	proc := p.proc
	if proc == nil {
		p.state = StateStopped
		p.mu.Unlock()
		return
	}
	p.stopping = true
	started := p.startTime
	p.mu.Unlock()

	p.terminate(proc)

	p.mu.Lock()
	p.release()
	p.stopping = false
	p.mu.Unlock()

	p.logger.Info("Program stopped", "pid", proc.pid())
	Emit(p.events, Event{Program: p.def.Name, Type: EventStopped, PID: proc.pid(), Uptime: p.now().Sub(started)})
}

// terminate asks the process group to exit and escalates to a kill when it
// does not within the stop timeout.
func (p *Program) terminate(proc *process) {
	if proc.exited() {
		return
	}
	if err := procgroup.Interrupt(proc.cmd.Process); err != nil {
		p.logger.Warn("Failed to signal program", "error", err)
	}

	timer := time.NewTimer(p.stopTimeout)
	defer timer.Stop()
	select {
	case <-proc.done:
		return
	case <-timer.C:
	}

	p.logger.Warn("Program did not stop in time; killing", "timeout", p.stopTimeout)
	if err := procgroup.Kill(proc.cmd.Process); err != nil {
		p.logger.Error("Failed to kill program", "error", err)
	}
	timer.Reset(p.stopTimeout)
	select {
	case <-proc.done:
	case <-timer.C:
		p.logger.Error("Program still running after kill", "pid", proc.pid())
	}
}

func exitDetail(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
