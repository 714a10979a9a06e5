package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/scrypster/chronicle/internal/api/mcp"
)

func newMCPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the campaign tools over MCP on stdin and stdout",
		Long: strings.TrimSpace(`Serve chronicle as a Model Context Protocol server speaking line-delimited
JSON-RPC 2.0 on stdin and stdout. Tool calls without a campaign_id use the
--campaign flag. Every mutating call is saved before it is answered.

Nothing but protocol frames is written to stdout; logs go to stderr.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetOutput(os.Stderr)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := mcp.NewServer(a.registry, mcp.WithDefaultCampaign(a.campaignID), mcp.WithVersion(version))
			log.Info("serving JSON-RPC 2.0 on stdin/stdout")
			err := mcp.NewStdioTransport(srv, cmd.InOrStdin(), a.out).Serve(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
