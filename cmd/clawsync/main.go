package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clawsync/internal/app"
	"clawsync/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads the configuration and creates an App. The caller must defer
// a.Close(). operation identifies the CLI command being run.
func newApp(ctx context.Context, operation string) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a, err := app.New(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return a, nil
}

// signalContext returns a context canceled on SIGTERM or SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

var rootCmd = &cobra.Command{
	Use:          "clawsync",
	Short:        "State-durability sidecar for the OpenClaw gateway",
	SilenceUsage: false,
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore state from the remote namespace if local state is uninitialized",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, "restore")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Restore(ctx)
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run one backup cycle and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, "backup")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Backup(ctx)
	},
}

var loopCmd = &cobra.Command{
	Use:   "loop [-- gateway command...]",
	Short: "Restore once, supervise the gateway, and back up on an interval",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, "loop")
		if err != nil {
			return err
		}

		code, err := a.Loop(ctx, args)
		a.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "clawsync: %v\n", err)
		}
		os.Exit(code)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local state and last-backup status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, "status")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Status(ctx)
		if err != nil {
			return err
		}

		if report.Initialized {
			fmt.Println("Local state:  initialized")
		} else {
			fmt.Println("Local state:  uninitialized")
		}

		switch {
		case !report.Active:
			fmt.Println("Backup:       inactive")
		case report.MarkerFound:
			fmt.Printf("Last backup:  %s\n", report.LastBackup)
			fmt.Printf("State dir:    %s\n", report.StateDir)
		default:
			fmt.Println("Last backup:  none found")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(loopCmd)
	rootCmd.AddCommand(statusCmd)
}
