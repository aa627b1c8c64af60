package procgroup

import (
	"os/exec"
	"syscall"
)

func configureCmdSysProcAttr(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	// Children die with the supervisor even when it is killed with SIGKILL.
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}
