package procgroup

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
)

// ErrDestroyed is returned by Join once the container has been torn down.
var ErrDestroyed = errors.New("process group container destroyed")

// Options configures a Container.
type Options struct {
	// Cgroup is an optional cgroup v2 directory used as an additional
	// backstop on Linux. It is ignored on other platforms.
	Cgroup string

	// Logger for container operations. If nil, output is discarded.
	Logger *slog.Logger
}

// backend is the host-specific half of a container.
type backend interface {
	join(proc *os.Process) error
	destroy(members []int) error
}

// Container tracks membership of every spawned process.
type Container struct {
	logger  *slog.Logger
	backend backend

	mu        sync.Mutex
	members   map[int]struct{}
	destroyed bool
}

// New creates a container and binds the calling process to it. It must be
// called before any child is spawned.
func New(opts Options) (*Container, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b, err := newBackend(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("create process group container: %w", err)
	}
	return &Container{
		logger:  logger,
		backend: b,
		members: make(map[int]struct{}),
	}, nil
}

// Prepare sets the spawn attributes a command needs to be joinable. It must
// be called before cmd.Start.
func (c *Container) Prepare(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	configureCmdSysProcAttr(cmd)
}

// Join adds a freshly started process to the container. A process offered
// after Destroy is killed immediately so it cannot escape supervision.
func (c *Container) Join(proc *os.Process) error {
	if proc == nil {
		return errors.New("join process group: nil process")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		_ = Kill(proc)
		return ErrDestroyed
	}
	if err := c.backend.join(proc); err != nil {
		return fmt.Errorf("join process %d: %w", proc.Pid, err)
	}
	c.pruneLocked()
	c.members[proc.Pid] = struct{}{}
	c.logger.Debug("Process joined group", "pid", proc.Pid)
	return nil
}

// Leave drops pid once its process group has no process left. A group that
// still holds descendants of pid stays tracked so that Destroy reaches them;
// a later Join or Destroy drops it when it empties.
func (c *Container) Leave(pid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[pid]; !ok {
		return
	}
	if groupAlive(pid) {
		c.logger.Debug("Process left group with live descendants", "pid", pid)
		return
	}
	delete(c.members, pid)
	c.logger.Debug("Process left group", "pid", pid)
}

// pruneLocked forgets groups that emptied without a Leave. Callers hold mu.
func (c *Container) pruneLocked() {
	for pid := range c.members {
		if !groupAlive(pid) {
			delete(c.members, pid)
		}
	}
}

// Members returns the PIDs that joined the container, sorted.
func (c *Container) Members() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.members))
	for pid := range c.members {
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}

// Destroy terminates every member still alive, including descendants, and
// releases the container. Calling it more than once is a no-op.
func (c *Container) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.pruneLocked()
	members := make([]int, 0, len(c.members))
	for pid := range c.members {
		members = append(members, pid)
	}
	c.members = nil
	c.mu.Unlock()

	sort.Ints(members)
	c.logger.Info("Destroying process group container", "members", len(members))
	if err := c.backend.destroy(members); err != nil {
		c.logger.Warn("Process group teardown incomplete", "error", err)
		return err
	}
	return nil
}
