package cmd

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/testwatch/cli"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/tui"
	"github.com/grovetools/testwatch/tui/explorer"
	"github.com/spf13/cobra"
)

// NewWatchCmd returns the interactive explorer command.
func NewWatchCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Browse test files with live status",
		Long: `Open the interactive workspace explorer. The file list, the test summary and
the runner status update live; selecting a file is shared with every other
view connected to the same daemon.

Examples:
  # Explore the current project
  testwatch watch

  # Run without a daemon
  testwatch watch --local`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !tui.Interactive() {
				return fmt.Errorf("watch requires an interactive terminal; use 'testwatch status' instead")
			}
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
			if err := ex.Open(cmd.Context()); err != nil {
				return err
			}

			// Log lines would tear the alternate screen.
			logging.SetGlobalOutput(io.Discard)

			tui.InitializeTUI()
			p := tea.NewProgram(explorer.New(ex), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("error running explorer: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Scan in-process even when a daemon is running")
	return cmd
}
