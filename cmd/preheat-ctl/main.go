//go:build linux

// Command preheat-ctl is the companion control tool for preheatd: it
// reads the daemon's PID file and sends the signal that corresponds to
// each subcommand (spec §6's CLI control surface).
package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wasteddreams/preheat/internal/pidlock"
)

func main() {
	var pidPath string

	root := &cobra.Command{
		Use:   "preheat-ctl",
		Short: "Control a running preheatd instance",
	}
	root.PersistentFlags().StringVar(&pidPath, "pidfile", "/run/preheat.pid", "preheatd's PID file path")

	root.AddCommand(
		statusCmd(&pidPath),
		signalCmd(&pidPath, "reload", syscall.SIGHUP, "re-read config, reload blacklist, reopen log"),
		signalCmd(&pidPath, "dump", syscall.SIGUSR1, "dump in-memory state summary and stats"),
		signalCmd(&pidPath, "save", syscall.SIGUSR2, "trigger an immediate state save"),
		signalCmd(&pidPath, "stop", syscall.SIGTERM, "request graceful shutdown"),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func statusCmd(pidPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query whether preheatd is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := pidlock.Read(*pidPath)
			if err != nil {
				return err
			}
			if err := syscall.Kill(pid, 0); err != nil {
				return fmt.Errorf("preheatd (pid %d) is not running: %w", pid, err)
			}
			fmt.Printf("preheatd is running (pid %d)\n", pid)
			return nil
		},
	}
}

// signalCmd builds the reload/dump/save/stop subcommands, which all
// share the same "read PID, send one signal" shape.
func signalCmd(pidPath *string, use string, sig syscall.Signal, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := pidlock.Read(*pidPath)
			if err != nil {
				return err
			}
			if err := syscall.Kill(pid, sig); err != nil {
				return fmt.Errorf("signal preheatd (pid %d): %w", pid, err)
			}
			return nil
		},
	}
}
