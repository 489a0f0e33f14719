package cmd

import (
	"context"
	"fmt"

	"github.com/grovetools/testwatch/cli"
	"github.com/spf13/cobra"
)

// NewSelectCmd returns the command that sets the shared selected file.
func NewSelectCmd() *cobra.Command {
	var none bool

	cmd := &cobra.Command{
		Use:   "select [path]",
		Short: "Set the selected test file",
		Long: `Ask the daemon to select a test file. Every connected view moves its
selection to it, except one still waiting on a selection of its own. The
path is relative to the workspace root.

Examples:
  testwatch select pkg/store/store_test.go

  # Clear the selection
  testwatch select --none`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if none == (len(args) == 1) {
				return fmt.Errorf("give a path or --none")
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := connect(cfg, connectDaemon)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Client.MutationTimeout)
			defer cancel()
			if err := c.SetSelectedFile(ctx, path); err != nil {
				return err
			}

			cli.GetLogger(cmd).WithField("path", path).Debug("Selection changed")
			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Selection cleared")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Selected %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&none, "none", false, "Clear the selection")
	return cmd
}
