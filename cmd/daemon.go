package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/testwatch/cli"
	"github.com/grovetools/testwatch/config"
	"github.com/grovetools/testwatch/internal/daemon/pidfile"
	"github.com/grovetools/testwatch/internal/daemon/server"
	"github.com/grovetools/testwatch/internal/daemon/store"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/paths"
	"github.com/grovetools/testwatch/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// NewDaemonCmd returns the daemon command with subcommands.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the testwatch daemon",
		Long: `The daemon holds the workspace listing, the selected file, the test summary
and the runner status of one project, and serves them to every testwatch view.

Examples:
  # Run the daemon for the current project in the foreground
  testwatch daemon start

  # Check whether it is running
  testwatch daemon status`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long:  "Start the testwatch daemon for the current project in foreground mode.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}
}

// runDaemon serves cfg's project until ctx is canceled or a signal arrives.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger("testwatchd")
	pidPath := cfg.PidFile()

	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create state directories: %w", err)
	}

	if err := pidfile.Acquire(pidPath); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	eng, err := newEngine(cfg, store.New(), logger)
	if err != nil {
		return err
	}

	srv := server.New(logger)
	srv.SetEngine(eng)
	srv.SetRunningConfig(&server.RunningConfig{
		Root:         cfg.Workspace.Root,
		Include:      cfg.Workspace.Include,
		Exclude:      cfg.Workspace.Exclude,
		ScanInterval: cfg.Workspace.ScanInterval,
		EventsFile:   cfg.Results.EventsFile,
		Version:      version.GetInfo().Version,
		StartedAt:    time.Now(),
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		eng.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(cfg.Daemon.Socket)
	})
	if cfg.Daemon.Addr != "" {
		g.Go(func() error {
			return srv.ListenAndServeTCP(cfg.Daemon.Addr)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Stopping daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.WithFields(logrus.Fields{
		"pid":  os.Getpid(),
		"root": cfg.Workspace.Root,
	}).Info("Starting daemon")

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			running, pid, err := pidfile.IsRunning(cfg.PidFile())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

// daemonStatus is the --json output of daemon status.
type daemonStatus struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Socket  string `json:"socket"`
	Addr    string `json:"addr,omitempty"`
	Root    string `json:"root"`
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		Long:  "Check whether the daemon of the current project is running. Exits 1 when it is stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			running, pid, err := pidfile.IsRunning(cfg.PidFile())
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}
			if !running {
				pid = 0
			}
			st := daemonStatus{
				Running: running,
				PID:     pid,
				Socket:  cfg.Daemon.Socket,
				Addr:    cfg.Daemon.Addr,
				Root:    cfg.Workspace.Root,
			}

			out := cmd.OutOrStdout()
			if cli.GetOptions(cmd).JSONOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(st); err != nil {
					return err
				}
			} else if running {
				fmt.Fprintf(out, "Running (PID: %d)\nSocket: %s\n", pid, st.Socket)
				if st.Addr != "" {
					fmt.Fprintf(out, "Address: %s\n", st.Addr)
				}
			} else {
				fmt.Fprintln(out, "Stopped")
			}

			if !running {
				return &cli.SilentExit{Code: 1}
			}
			return nil
		},
	}
}
