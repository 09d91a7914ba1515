package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"csms/internal/config"
	"csms/internal/log"
	"csms/internal/server"
)

func NewServeCommand(ctx context.Context) *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the central system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			if err := log.Init(cfg.Log); err != nil {
				return err
			}
			defer log.Sync()
			logger := log.Std()

			st, err := server.OpenStore(ctx, cfg.Store)
			if err != nil {
				logger.Error(err, "failed to open store", "driver", cfg.Store.Driver)
				return err
			}
			defer st.Close()

			a, err := server.Build(cfg, st, logger)
			if err != nil {
				logger.Error(err, "failed to build central system")
				return err
			}
			if err := a.Run(ctx); err != nil {
				logger.Error(err, "central system stopped with error")
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Optional config file (yaml, json or toml).")
	config.New().AddFlags(cmd.Flags())
	return cmd
}

func NewMigrateCommand(ctx context.Context) *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			st, err := server.OpenStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Store.Driver)
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Optional config file (yaml, json or toml).")
	config.New().AddFlags(cmd.Flags())
	return cmd
}
