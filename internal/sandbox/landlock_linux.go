//go:build linux

package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/codefionn/seeky/internal/logger"
	landlock "github.com/landlock-lsm/go-landlock/landlock"
)

// Device files most programs expect to be able to write.
var writableDevices = []string{"/dev/null", "/dev/zero", "/dev/tty", "/dev/stdout", "/dev/stderr"}

// Landlock confines commands on Linux. Landlock restricts the calling
// thread and its descendants only, so sessions re-execute the helper
// binary, which restricts itself and then execs the target.
type Landlock struct {
	helper     string
	bestEffort bool
}

func NewLandlock(opts Options) *Landlock {
	helper := opts.HelperPath
	if helper == "" {
		if exe, err := os.Executable(); err == nil {
			helper = exe
		}
	}
	return &Landlock{helper: helper, bestEffort: opts.BestEffort}
}

func (*Landlock) Name() string { return "landlock" }

func (l *Landlock) Available() error {
	if l.helper == "" {
		return fmt.Errorf("landlock: helper executable unknown")
	}
	return nil
}

func (l *Landlock) Command(ctx context.Context, argv []string, cwd string, policy Policy) (*exec.Cmd, error) {
	encoded, err := policy.Encode()
	if err != nil {
		return nil, err
	}
	args := []string{"debug", "landlock", "--policy", encoded}
	if !l.bestEffort {
		args = append(args, "--strict")
	}
	args = append(args, "--")
	args = append(args, argv...)

	cmd := exec.CommandContext(ctx, l.helper, args...)
	cmd.Dir = cwd
	logger.Debug("landlock: %s under %s", argv[0], policy)
	return cmd, nil
}

// Exec applies policy to the current process and execs argv in cwd.
func (l *Landlock) Exec(argv []string, cwd string, policy Policy) error {
	if len(argv) == 0 {
		return fmt.Errorf("landlock: empty command")
	}
	if cwd != "" {
		if err := os.Chdir(cwd); err != nil {
			return fmt.Errorf("landlock: chdir: %w", err)
		}
	}
	// Resolve before restricting: the lookup may need directories the
	// policy hides.
	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("landlock: %w", err)
	}
	if err := l.restrict(policy); err != nil {
		return err
	}
	return syscall.Exec(bin, argv, os.Environ())
}

func (l *Landlock) restrict(policy Policy) error {
	rules := landlockRules(policy)

	cfg := landlock.V6
	if l.bestEffort {
		cfg = cfg.BestEffort()
	}

	var err error
	if policy.NetworkAccess {
		err = cfg.RestrictPaths(rules...)
	} else {
		// Restrict with no network rules denies all TCP bind and connect.
		err = cfg.Restrict(rules...)
	}
	if err != nil {
		logger.Warn("landlock restriction failed: %v", err)
		return fmt.Errorf("landlock restriction failed: %w", err)
	}
	logger.Debug("landlock restrictions applied: %d rules, network=%v", len(rules), policy.NetworkAccess)
	return nil
}

// landlockRules grants read access everywhere and write access to the
// policy's writable roots. Landlock rejects directory rights on regular
// files, so each path is typed before it becomes a rule.
func landlockRules(policy Policy) []landlock.Rule {
	rules := []landlock.Rule{landlock.RODirs("/")}
	for _, p := range policy.ReadOnlyPaths {
		if r, ok := pathRule(p, false); ok {
			rules = append(rules, r)
		}
	}
	for _, p := range policy.WritableRoots() {
		if r, ok := pathRule(p, true); ok {
			rules = append(rules, r)
		}
	}
	for _, dev := range writableDevices {
		if _, err := os.Stat(dev); err == nil {
			rules = append(rules, landlock.RWFiles(dev))
		}
	}
	return rules
}

func pathRule(path string, writable bool) (landlock.Rule, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	info, err := os.Stat(abs)
	if err != nil {
		logger.Debug("landlock: skipping missing path %s", abs)
		return nil, false
	}
	switch {
	case writable && info.IsDir():
		return landlock.RWDirs(abs), true
	case writable:
		return landlock.RWFiles(abs), true
	case info.IsDir():
		return landlock.RODirs(abs), true
	default:
		return landlock.ROFiles(abs), true
	}
}
