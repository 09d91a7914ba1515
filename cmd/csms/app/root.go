// Package app holds the csms command tree.
package app

import (
	"context"

	"github.com/spf13/cobra"
)

func NewRootCommand(ctx context.Context) *cobra.Command {
	serve := NewServeCommand(ctx)
	cmd := &cobra.Command{
		Use:          "csms",
		Short:        "OCPP 1.6 central system",
		Long:         "csms accepts OCPP 1.6 websocket connections from charge points, records their state and charging sessions, and relays remote start/stop commands from operators.",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	cmd.Flags().AddFlagSet(serve.Flags())
	cmd.AddCommand(
		serve,
		NewMigrateCommand(ctx),
		NewHashSecretCommand(),
		NewChargersCommand(ctx),
		NewRemoteStartCommand(ctx),
		NewRemoteStopCommand(ctx),
	)
	return cmd
}
