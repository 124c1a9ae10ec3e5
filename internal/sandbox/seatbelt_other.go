//go:build !darwin

package sandbox

import (
	"context"
	"os/exec"
)

// Seatbelt is only functional on macOS.
type Seatbelt struct{}

func NewSeatbelt() *Seatbelt { return &Seatbelt{} }

func (*Seatbelt) Name() string     { return "seatbelt" }
func (*Seatbelt) Available() error { return unsupported("seatbelt") }

func (*Seatbelt) Command(context.Context, []string, string, Policy) (*exec.Cmd, error) {
	return nil, unsupported("seatbelt")
}

func (*Seatbelt) Exec([]string, string, Policy) error { return unsupported("seatbelt") }
