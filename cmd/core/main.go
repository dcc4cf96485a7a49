// Command core is the Kagan core daemon: the single long-lived process
// that owns the SQLite store, the worktree manager, the AUTO scheduler,
// and the IPC server every client (TUI, CLI, plugin host) talks to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kagan-sh/kagan-core/internal/config"
	"github.com/kagan-sh/kagan-core/internal/ipc"
	"github.com/kagan-sh/kagan-core/internal/logging"
)

var (
	flagDBPath     string
	flagConfigPath string
	flagForeground bool

	rootCmd = &cobra.Command{
		Use:   "core",
		Short: "Kagan core daemon",
		Long:  "core owns the task store, worktree manager, agent scheduler, and IPC server backing every Kagan client.",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db-path", "", "override the SQLite database path")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config-path", "", "override the config directory")

	startCmd.Flags().BoolVar(&flagForeground, "foreground", false, "run in the foreground; start always runs the core in this process and does not detach, so this flag only suppresses the startup pid log line")
	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the core daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load(flagDBPath, flagConfigPath)
		logging.Initialize(cfg.Debug)

		files := ipc.NewFileStore(cfg.CoreRuntimeDir)
		if _, _, err := ipc.Discover(files); err == nil {
			return fmt.Errorf("core: another instance is already running; use 'core stop' first")
		}

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if !flagForeground {
			logging.Info("core: starting (pid %d)", os.Getpid())
		}
		return a.run(ctx)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running core daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load(flagDBPath, flagConfigPath)
		files := ipc.NewFileStore(cfg.CoreRuntimeDir)

		lease, err := files.ReadLease()
		if err != nil {
			return fmt.Errorf("core: no running instance found: %w", err)
		}
		if _, _, err := ipc.Discover(files); err != nil {
			return fmt.Errorf("core: recorded instance is not live: %w", err)
		}

		proc, err := os.FindProcess(lease.OwnerPID)
		if err != nil {
			return fmt.Errorf("core: find process %d: %w", lease.OwnerPID, err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("core: signal process %d: %w", lease.OwnerPID, err)
		}
		fmt.Printf("sent SIGTERM to core (pid %d)\n", lease.OwnerPID)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a core daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load(flagDBPath, flagConfigPath)
		files := ipc.NewFileStore(cfg.CoreRuntimeDir)

		endpoint, _, err := ipc.Discover(files)
		if err != nil {
			fmt.Println("core: not running")
			return nil
		}
		lease, _ := files.ReadLease()
		fmt.Printf("core: running (pid %d, host %s, transport %s, address %s)\n",
			lease.OwnerPID, lease.OwnerHostname, endpoint.Transport, endpoint.Address)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
