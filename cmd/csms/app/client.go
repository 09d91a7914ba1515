package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"csms/internal/config"
	"csms/internal/gatewayclient"
)

type clientOptions struct {
	Server string `mapstructure:"server"`
	Token  string `mapstructure:"token"`
}

func (o *clientOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Server, "server", "http://localhost:8080", "Base URL of the central system.")
	fs.StringVar(&o.Token, "token", "", "Operator API bearer token. Also read from CSMS_API_TOKEN.")
}

// client resolves the flags, falling back to the environment.
func (o *clientOptions) client(fs *pflag.FlagSet) (*gatewayclient.Client, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	if err := v.BindEnv("server", config.EnvPrefix+"_SERVER"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("token", config.EnvPrefix+"_API_TOKEN"); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(o); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(o.Server, "http://") && !strings.HasPrefix(o.Server, "https://") {
		return nil, fmt.Errorf("--server must be an http(s) URL, got %q", o.Server)
	}
	return gatewayclient.New(o.Server, o.Token), nil
}

func NewChargersCommand(ctx context.Context) *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "chargers",
		Short: "List connected chargers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd.Flags())
			if err != nil {
				return err
			}
			chargers, err := c.Chargers(ctx)
			if err != nil {
				return err
			}
			for _, ch := range chargers {
				fmt.Fprintln(cmd.OutOrStdout(), ch.Identity)
			}
			return nil
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func NewRemoteStartCommand(ctx context.Context) *cobra.Command {
	opts := &clientOptions{}
	var connector int
	cmd := &cobra.Command{
		Use:   "remote-start IDENTITY ID_TAG",
		Short: "Ask a charger to start a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd.Flags())
			if err != nil {
				return err
			}
			var connectorId *int
			if cmd.Flags().Changed("connector") {
				connectorId = &connector
			}
			res, err := c.RemoteStart(ctx, args[0], args[1], connectorId)
			if err != nil {
				return err
			}
			return printResponse(cmd, res)
		},
	}
	opts.AddFlags(cmd.Flags())
	cmd.Flags().IntVar(&connector, "connector", 1, "Connector to start on.")
	return cmd
}

func NewRemoteStopCommand(ctx context.Context) *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "remote-stop IDENTITY TRANSACTION_ID",
		Short: "Ask a charger to stop a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid transaction id %q", args[1])
			}
			c, err := opts.client(cmd.Flags())
			if err != nil {
				return err
			}
			res, err := c.RemoteStop(ctx, args[0], id)
			if err != nil {
				return err
			}
			return printResponse(cmd, res)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func printResponse(cmd *cobra.Command, res *gatewayclient.CommandResult) error {
	var v any
	if err := json.Unmarshal(res.OcppResponse, &v); err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
