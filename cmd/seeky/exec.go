package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codefionn/seeky/internal/frontend/execmode"
	"github.com/codefionn/seeky/internal/mcp"
)

var errTaskFailed = errors.New("task reported an error")

func newExecCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "exec [prompt]",
		Aliases: []string{"e"},
		Short:   "Run one prompt non-interactively",
		Long: `Run a single prompt to completion and print the agent's messages on stdout.
Progress goes to stderr. Approval requests are asked on the terminal when
stdin is one and denied otherwise. With no prompt argument the prompt is
read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, os.Stdin)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runExec(ctx, g, prompt)
		},
	}
}

func readPrompt(args []string, stdin *os.File) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && !term.IsTerminal(int(stdin.Fd())) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return "", errors.New("no prompt given")
	}
	return prompt, nil
}

func runExec(ctx context.Context, g *globalFlags, prompt string) error {
	a, err := g.newAgent(context.Background())
	if err != nil {
		return err
	}
	h, err := a.NewSession(nil)
	if err != nil {
		return errors.Join(err, a.Close())
	}
	// A prompt read from stdin leaves nothing to answer approvals with.
	approver := execmode.ForTerminal()
	res, err := execmode.Run(ctx, h, prompt, execmode.Options{
		Out:      os.Stdout,
		Err:      os.Stderr,
		Approver: approver,
	})
	err = errors.Join(err, a.Close())
	if err != nil {
		return err
	}
	if res.Failed() {
		return errTaskFailed
	}
	return nil
}

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve seeky as an MCP tool over stdio",
		Long: `Run an MCP server on stdin/stdout exposing the "seeky" tool. Each call runs
one prompt in a fresh session and returns the final agent message. There is
no one to ask, so every approval request is denied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := g.newAgent(ctx)
			if err != nil {
				return err
			}
			return errors.Join(mcp.Serve(ctx, version, execmode.PromptRunner(a)), a.Close())
		},
	}
}
