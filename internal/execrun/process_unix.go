//go:build !windows

package execrun

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/codefionn/seeky/internal/logger"
)

var terminateSignal = syscall.SIGTERM

// configureProcessGroup puts the command in its own process group so
// signals reach every descendant.
func configureProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func getProcessGroupID(cmd *exec.Cmd) int {
	if cmd.Process == nil {
		return 0
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return 0
	}
	return pgid
}

func signalProcessGroup(pgid int, signal string) error {
	if pgid <= 0 {
		return fmt.Errorf("invalid process group id: %d", pgid)
	}
	var sig syscall.Signal
	switch signal {
	case "SIGTERM":
		sig = syscall.SIGTERM
	case "SIGKILL":
		sig = syscall.SIGKILL
	default:
		return fmt.Errorf("unsupported signal: %s", signal)
	}
	logger.Debug("exec: sending %s to process group %d", signal, pgid)
	return syscall.Kill(-pgid, sig)
}

// signalExitCode maps death by signal to the shell convention 128+n.
func signalExitCode(err *exec.ExitError) (int, bool) {
	ws, ok := err.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return 0, false
	}
	return 128 + int(ws.Signal()), true
}
