package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

// ErrUnsupportedPlatform is wrapped by every UnsupportedPlatformError.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// UnsupportedPlatformError names the back end that cannot run on this host.
type UnsupportedPlatformError struct {
	Backend string
	GOOS    string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("%s sandbox is not available: %s on %s", e.Backend, ErrUnsupportedPlatform, e.GOOS)
}

func (e *UnsupportedPlatformError) Unwrap() error { return ErrUnsupportedPlatform }

func unsupported(backend string) error {
	return &UnsupportedPlatformError{Backend: backend, GOOS: runtime.GOOS}
}

// Backend enforces a Policy on one kernel family.
type Backend interface {
	Name() string
	// Available returns an *UnsupportedPlatformError when the back end
	// cannot work on this host.
	Available() error
	// Command prepares argv to run confined by policy.
	Command(ctx context.Context, argv []string, cwd string, policy Policy) (*exec.Cmd, error)
	// Exec confines the current process and replaces it with argv. It only
	// returns on failure.
	Exec(argv []string, cwd string, policy Policy) error
}

// Options configure the host back ends.
type Options struct {
	// HelperPath is the executable re-invoked as `debug landlock` to apply
	// Landlock before exec. Defaults to the running binary.
	HelperPath string
	// BestEffort lets Landlock use the strongest ABI the kernel offers
	// instead of failing on older kernels.
	BestEffort bool
}

// ForHost returns the single back end matching runtime.GOOS. On hosts
// with neither back end the result fails every call.
func ForHost(opts Options) Backend {
	switch runtime.GOOS {
	case "linux":
		return NewLandlock(opts)
	case "darwin":
		return NewSeatbelt()
	default:
		return noBackend{}
	}
}

// CommandFor builds the command for argv under policy. Unconfined policies
// run argv directly and never touch the back end.
func CommandFor(ctx context.Context, b Backend, argv []string, cwd string, policy Policy) (*exec.Cmd, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	if !policy.Confined() {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = cwd
		return cmd, nil
	}
	if b == nil {
		return nil, unsupported("none")
	}
	if err := b.Available(); err != nil {
		return nil, err
	}
	return b.Command(ctx, argv, cwd, policy)
}

type noBackend struct{}

func (noBackend) Name() string     { return "none" }
func (noBackend) Available() error { return unsupported("any") }
func (noBackend) Command(context.Context, []string, string, Policy) (*exec.Cmd, error) {
	return nil, unsupported("any")
}
func (noBackend) Exec([]string, string, Policy) error { return unsupported("any") }
