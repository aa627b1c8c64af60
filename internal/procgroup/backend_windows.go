//go:build windows

package procgroup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

type jobBackend struct {
	mu        sync.Mutex
	handle    windows.Handle
	destroyed bool
}

func newBackend(opts Options, logger *slog.Logger) (backend, error) {
	if opts.Cgroup != "" {
		logger.Warn("cgroup backstop is only available on Linux; ignoring", "cgroup", opts.Cgroup)
	}
	handle, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create job object: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		handle,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		_ = windows.CloseHandle(handle)
		return nil, fmt.Errorf("configure job object: %w", err)
	}

	// Joining the supervisor itself closes the window in which it could be
	// killed before its first child is assigned.
	if err := windows.AssignProcessToJobObject(handle, windows.CurrentProcess()); err != nil {
		_ = windows.CloseHandle(handle)
		return nil, fmt.Errorf("assign supervisor to job object: %w", err)
	}
	return &jobBackend{handle: handle}, nil
}

func (b *jobBackend) join(proc *os.Process) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	ph, err := windows.OpenProcess(windows.PROCESS_TERMINATE|windows.PROCESS_SET_QUOTA, false, uint32(proc.Pid))
	if err != nil {
		return fmt.Errorf("open process: %w", err)
	}
	defer windows.CloseHandle(ph)
	return windows.AssignProcessToJobObject(b.handle, ph)
}

func (b *jobBackend) destroy([]int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil
	}
	b.destroyed = true
	// The supervisor is a member of a kill-on-close job: closing the last
	// handle here would terminate it before the control server drains. The
	// handle stays open and is released when the supervisor exits.
	return terminateJobMembers(b.handle)
}

// terminateJobMembers kills every process in the job except the caller.
func terminateJobMembers(job windows.Handle) error {
	const maxPids = 1024
	type pidList struct {
		NumberOfAssignedProcesses uint32
		NumberOfProcessIdsInList  uint32
		ProcessIdList             [maxPids]uintptr
	}
	var list pidList
	err := windows.QueryInformationJobObject(
		job,
		windows.JobObjectBasicProcessIdList,
		uintptr(unsafe.Pointer(&list)),
		uint32(unsafe.Sizeof(list)),
		nil,
	)
	if err != nil {
		return fmt.Errorf("list job members: %w", err)
	}
	self := windows.GetCurrentProcessId()
	var errs []error
	for i := uint32(0); i < list.NumberOfProcessIdsInList && i < maxPids; i++ {
		pid := uint32(list.ProcessIdList[i])
		if pid == self {
			continue
		}
		ph, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
		if err != nil {
			continue
		}
		if err := windows.TerminateProcess(ph, 1); err != nil {
			errs = append(errs, fmt.Errorf("terminate job member %d: %w", pid, err))
		}
		_ = windows.CloseHandle(ph)
	}
	return errors.Join(errs...)
}

// groupAlive always reports false: job membership is tracked by the kernel,
// so the container's member list is bookkeeping only.
func groupAlive(int) bool { return false }

func configureCmdSysProcAttr(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NEW_PROCESS_GROUP
}

// Interrupt terminates the process. Windows has no portable graceful
// termination request for console-less children.
func Interrupt(proc *os.Process) error {
	return Kill(proc)
}

// Kill forcefully terminates the process.
func Kill(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %d: %w", proc.Pid, err)
	}
	return nil
}
