//go:build windows

package execrun

import (
	"os"
	"os/exec"
	"syscall"
)

var terminateSignal = os.Kill

func configureProcessGroup(*exec.Cmd) {}

func getProcessGroupID(*exec.Cmd) int { return 0 }

func signalProcessGroup(int, string) error { return syscall.EWINDOWS }

func signalExitCode(*exec.ExitError) (int, bool) { return 0, false }
