package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/workload-launcher/internal/config"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a launcher configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(config.WithConfigPath(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Valid configuration")
			fmt.Fprintf(out, "  Dataplane: %s\n", cfg.Dataplane.Name)
			fmt.Fprintf(out, "  Control plane: %s\n", cfg.ControlPlane.BaseURL)
			fmt.Fprintf(out, "  Namespace: %s\n", cfg.Kubernetes.GetNamespace())
			if cfg.ControlPlane.TokenURL != "" {
				fmt.Fprintf(out, "  Token URL: %s\n", cfg.ControlPlane.TokenURL)
			}
			return nil
		},
	}
	return cmd
}
