package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codefionn/seeky/internal/agent"
	"github.com/codefionn/seeky/internal/config"
	"github.com/codefionn/seeky/internal/frontend/tui"
	"github.com/codefionn/seeky/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// globalFlags are shared by every session-creating command and the
// sandbox probes.
type globalFlags struct {
	configPath string
	fullAuto   bool
	sandbox    string
	model      string
	cwd        string
}

func (g *globalFlags) overrides() agent.Overrides {
	return agent.Overrides{FullAuto: g.fullAuto, Sandbox: g.sandbox, Model: g.model, Cwd: g.cwd}
}

// loadConfig reads the config file and starts the file logger.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func (g *globalFlags) newAgent(ctx context.Context) (*agent.Agent, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	logger.Info("seeky %s starting", version)
	return agent.New(ctx, cfg, g.overrides(), version)
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "seeky",
		Short: "Coding agent with approval-gated, sandboxed command execution",
		Long: `Seeky drives a language model that proposes shell commands, patches and
tool calls. Every action is classified by the exec policy, gated on your
approval and confined by the platform sandbox.

Without a subcommand seeky starts the interactive terminal UI.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), g)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "Configuration file (JSON)")
	flags.BoolVar(&g.fullAuto, "full-auto", false, "Run without approval prompts inside the full-auto sandbox")
	flags.StringVarP(&g.sandbox, "sandbox", "s", "", "Sandbox mode: read-only, workspace-write or danger-full-access")
	flags.StringVarP(&g.model, "model", "m", "", "Model name")
	flags.StringVarP(&g.cwd, "cd", "C", "", "Working directory for the session")

	root.AddCommand(
		newExecCmd(g),
		newProtoCmd(g),
		newMCPCmd(g),
		newDebugCmd(g),
	)
	return root
}

func runInteractive(ctx context.Context, g *globalFlags) error {
	a, err := g.newAgent(ctx)
	if err != nil {
		return err
	}
	h, err := a.NewSession(nil)
	if err != nil {
		return errors.Join(err, a.Close())
	}
	return errors.Join(tui.Run(ctx, h), a.Close())
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defer func() {
		if err := logger.Global().Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", err)
		}
	}()
	return newRootCmd().ExecuteContext(context.Background())
}
