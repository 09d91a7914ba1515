package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"csms/internal/security"
)

// NewHashSecretCommand prints the digest to configure as auth.secret-sha256,
// so the plain charger secret never has to be stored on the server.
func NewHashSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret SECRET",
		Short: "Print the SHA-256 digest of a charger secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), security.HashSecretSHA256(args[0]))
			return nil
		},
	}
}
