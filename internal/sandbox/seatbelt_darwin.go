//go:build darwin

package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/codefionn/seeky/internal/logger"
)

// Only trust the system copy; a sandbox-exec earlier on PATH could be
// anything.
const sandboxExecPath = "/usr/bin/sandbox-exec"

// Seatbelt confines commands with macOS sandbox-exec.
type Seatbelt struct{}

func NewSeatbelt() *Seatbelt { return &Seatbelt{} }

func (*Seatbelt) Name() string { return "seatbelt" }

func (*Seatbelt) Available() error {
	if _, err := os.Stat(sandboxExecPath); err != nil {
		return fmt.Errorf("seatbelt: %s: %w", sandboxExecPath, err)
	}
	return nil
}

func (*Seatbelt) Command(ctx context.Context, argv []string, cwd string, policy Policy) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, sandboxExecPath, seatbeltArgs(argv, policy)...)
	cmd.Dir = cwd
	logger.Debug("seatbelt: %s under %s", argv[0], policy)
	return cmd, nil
}

func (*Seatbelt) Exec(argv []string, cwd string, policy Policy) error {
	if len(argv) == 0 {
		return fmt.Errorf("seatbelt: empty command")
	}
	if cwd != "" {
		if err := os.Chdir(cwd); err != nil {
			return fmt.Errorf("seatbelt: chdir: %w", err)
		}
	}
	args := append([]string{sandboxExecPath}, seatbeltArgs(argv, policy)...)
	return syscall.Exec(sandboxExecPath, args, os.Environ())
}
