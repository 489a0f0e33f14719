package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/grovetools/testwatch/cli"
	"github.com/grovetools/testwatch/tui"
	"github.com/grovetools/testwatch/tui/explorer"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewStatusCmd returns the one-shot status command.
func NewStatusCmd() *cobra.Command {
	var (
		local   bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the workspace view once",
		Long: `Load the workspace listing, the selected file, the test summary and the
runner status, print them and exit. Without a running daemon the project is
scanned in-process.

Examples:
  # Show test status of the current project
  testwatch status

  # Machine-readable output
  testwatch status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			mode := connectAuto
			if local {
				mode = connectLocal
			}
			c, err := connect(cfg, mode)
			if err != nil {
				return err
			}
			defer c.Close()

			ex := newExplorer(c, cfg)
			defer ex.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := ex.Open(ctx); err != nil {
				return err
			}
			m, err := ex.WaitReady(ctx)
			if err != nil {
				cli.GetLogger(cmd).WithError(err).Debug("Not every source loaded")
			}

			out := cmd.OutOrStdout()
			if cli.GetOptions(cmd).JSONOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}

			tui.InitializeTUI()
			width := 80
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
				width = w
			}
			fmt.Fprint(out, explorer.RenderStatus(m, width))
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Scan in-process even when a daemon is running")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for every source to load")
	return cmd
}
