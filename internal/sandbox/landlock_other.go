//go:build !linux

package sandbox

import (
	"context"
	"os/exec"
)

// Landlock is only functional on Linux.
type Landlock struct{}

func NewLandlock(Options) *Landlock { return &Landlock{} }

func (*Landlock) Name() string     { return "landlock" }
func (*Landlock) Available() error { return unsupported("landlock") }

func (*Landlock) Command(context.Context, []string, string, Policy) (*exec.Cmd, error) {
	return nil, unsupported("landlock")
}

func (*Landlock) Exec([]string, string, Policy) error { return unsupported("landlock") }
