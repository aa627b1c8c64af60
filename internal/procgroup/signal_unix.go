//go:build !windows

package procgroup

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Interrupt asks the process group led by proc to terminate gracefully.
func Interrupt(proc *os.Process) error {
	return signalGroup(proc, unix.SIGTERM)
}

// Kill forcefully terminates the process group led by proc.
func Kill(proc *os.Process) error {
	return signalGroup(proc, unix.SIGKILL)
}

func signalGroup(proc *os.Process, sig unix.Signal) error {
	if proc == nil {
		return nil
	}
	if err := unix.Kill(-proc.Pid, sig); err == nil {
		return nil
	}
	// Not a group leader (spawned without Prepare) or already gone; signal
	// the process itself.
	if err := proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal process %d: %w", proc.Pid, err)
	}
	return nil
}

// groupAlive reports whether the process group pgid still has a process this
// supervisor may signal. An exited leader that has been waited for no longer
// counts.
func groupAlive(pgid int) bool {
	if pgid <= 0 {
		return false
	}
	return unix.Kill(-pgid, 0) == nil
}

// killGroups sends SIGKILL to every process group in pgids, ignoring groups
// that no longer exist.
func killGroups(pgids []int) error {
	var errs []error
	for _, pgid := range pgids {
		if pgid <= 0 {
			continue
		}
		if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, fmt.Errorf("kill process group %d: %w", pgid, err))
		}
	}
	return errors.Join(errs...)
}
