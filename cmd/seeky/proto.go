package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codefionn/seeky/internal/agent"
	"github.com/codefionn/seeky/internal/frontend/proto"
	"github.com/codefionn/seeky/internal/frontend/wsserver"
)

func newProtoCmd(g *globalFlags) *cobra.Command {
	var listen, token string
	cmd := &cobra.Command{
		Use:     "proto",
		Aliases: []string{"p"},
		Short:   "Speak the raw protocol as JSON lines on stdin/stdout",
		Long: `Read Submissions from stdin and write Events to stdout, one JSON object per
line. The session shuts down at end of input.

With --listen, host sessions over websockets instead: every connection to
/v1/session gets its own session. Clients authenticate with ?token= or a
bearer token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := g.newAgent(ctx)
			if err != nil {
				return err
			}
			if listen != "" {
				return errors.Join(serveWebsocket(ctx, a, listen, token), a.Close())
			}
			h, err := a.NewSession(nil)
			if err != nil {
				return errors.Join(err, a.Close())
			}
			return errors.Join(proto.Serve(ctx, h, proto.Stdio(os.Stdin, os.Stdout)), a.Close())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Host websocket sessions on this address (e.g. 127.0.0.1:8937)")
	cmd.Flags().StringVar(&token, "token", os.Getenv("SEEKY_TOKEN"), "Auth token for --listen (random when empty)")
	return cmd
}

func serveWebsocket(ctx context.Context, a *agent.Agent, addr, token string) error {
	srv, err := wsserver.NewServer(addr, token, func() (*agent.Handle, error) {
		return a.NewSession(nil)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "seeky: sessions at %s\n", srv.URL())
	return srv.ListenAndServe(ctx)
}
