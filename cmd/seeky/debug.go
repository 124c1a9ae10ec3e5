package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codefionn/seeky/internal/agent"
	"github.com/codefionn/seeky/internal/sandbox"
)

func newDebugCmd(g *globalFlags) *cobra.Command {
	debug := &cobra.Command{
		Use:   "debug",
		Short: "Sandbox diagnostics",
	}
	debug.AddCommand(
		newProbeCmd(g, "seatbelt", "macOS Seatbelt (sandbox-exec)", func(sandbox.Options) sandbox.Backend {
			return sandbox.NewSeatbelt()
		}),
		newProbeCmd(g, "landlock", "Linux Landlock", func(opts sandbox.Options) sandbox.Backend {
			return sandbox.NewLandlock(opts)
		}),
	)
	return debug
}

// newProbeCmd runs one command directly under one back end. Sessions use
// the landlock probe as their confinement helper and pass the resolved
// policy with --policy.
func newProbeCmd(g *globalFlags, name, what string, build func(sandbox.Options) sandbox.Backend) *cobra.Command {
	var encoded string
	var strict bool
	cmd := &cobra.Command{
		Use:   name + " [flags] -- command [args...]",
		Short: "Run a command under " + what,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := build(sandbox.Options{BestEffort: !strict})
			if err := backend.Available(); err != nil {
				return err
			}
			policy, cwd, err := probePolicy(g, encoded)
			if err != nil {
				return err
			}
			return backend.Exec(args, cwd, policy)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&encoded, "policy", "", "Encoded sandbox policy (set by sessions)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail instead of degrading on kernels lacking Landlock features")
	_ = cmd.Flags().MarkHidden("policy")
	return cmd
}

// probePolicy uses an explicit encoded policy when given; otherwise it
// resolves the flags and config like a session would.
func probePolicy(g *globalFlags, encoded string) (sandbox.Policy, string, error) {
	cwd := g.cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return sandbox.Policy{}, "", err
		}
		cwd = wd
	}
	cwd, err := filepath.Abs(cwd)
	if err != nil {
		return sandbox.Policy{}, "", err
	}
	if encoded != "" {
		policy, err := sandbox.DecodePolicy(encoded)
		if err != nil {
			return sandbox.Policy{}, "", fmt.Errorf("--policy: %w", err)
		}
		return policy, cwd, nil
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return sandbox.Policy{}, "", err
	}
	policy, err := agent.ResolvePolicy(cfg, g.overrides(), cwd)
	if err != nil {
		return sandbox.Policy{}, "", err
	}
	if !policy.Confined() {
		return sandbox.Policy{}, "", errors.New("danger-full-access has nothing to probe; pick a confining sandbox mode")
	}
	return policy, cwd, nil
}
