package procgroup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

type linuxBackend struct {
	logger *slog.Logger
	cgroup string
}

func newBackend(opts Options, logger *slog.Logger) (backend, error) {
	b := &linuxBackend{logger: logger}
	if opts.Cgroup != "" {
		if err := os.MkdirAll(opts.Cgroup, 0o755); err != nil {
			return nil, fmt.Errorf("create cgroup %s: %w", opts.Cgroup, err)
		}
		if _, err := os.Stat(filepath.Join(opts.Cgroup, "cgroup.procs")); err != nil {
			return nil, fmt.Errorf("cgroup %s is not a cgroup v2 directory: %w", opts.Cgroup, err)
		}
		b.cgroup = opts.Cgroup
	}
	return b, nil
}

func (b *linuxBackend) join(proc *os.Process) error {
	if b.cgroup == "" {
		return nil
	}
	// Writing the PID moves the process and all of its threads atomically.
	procs := filepath.Join(b.cgroup, "cgroup.procs")
	return os.WriteFile(procs, []byte(strconv.Itoa(proc.Pid)), 0o644)
}

func (b *linuxBackend) destroy(members []int) error {
	var errs []error
	if b.cgroup != "" {
		if err := b.killCgroup(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := killGroups(members); err != nil {
		errs = append(errs, err)
	}
	if b.cgroup != "" {
		// Fails while killed members are still being reaped; the directory
		// is reused on the next start.
		if err := os.Remove(b.cgroup); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.logger.Debug("Cgroup not removed", "path", b.cgroup, "error", err)
		}
	}
	return errors.Join(errs...)
}

// killCgroup uses cgroup.kill (Linux 5.14+) and falls back to signalling
// every PID listed in cgroup.procs.
func (b *linuxBackend) killCgroup() error {
	if err := os.WriteFile(filepath.Join(b.cgroup, "cgroup.kill"), []byte("1"), 0o644); err == nil {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(b.cgroup, "cgroup.procs"))
	if err != nil {
		return fmt.Errorf("read cgroup members: %w", err)
	}
	var errs []error
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		pid, err := strconv.Atoi(scanner.Text())
		if err != nil || pid <= 0 {
			continue
		}
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, fmt.Errorf("kill cgroup member %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}
