//go:build !linux && !windows

package procgroup

import (
	"log/slog"
	"os"
)

type groupBackend struct{}

func newBackend(opts Options, logger *slog.Logger) (backend, error) {
	if opts.Cgroup != "" {
		logger.Warn("cgroup backstop is only available on Linux; ignoring", "cgroup", opts.Cgroup)
	}
	return groupBackend{}, nil
}

func (groupBackend) join(*os.Process) error { return nil }

func (groupBackend) destroy(members []int) error {
	return killGroups(members)
}
