// Package main implements semianctl, an operator CLI over the semian-go
// library: register resources, acquire/release tickets by hand, inspect
// sliding-window and PID-controller state, and tear structures down.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"semian-go/logging"
)

var (
	version = "0.1.0"
)

var (
	globalPermissions int
	globalLogFormat   string
	globalDebug       bool
)

var rootCmd = &cobra.Command{
	Use:   "semianctl",
	Short: "Inspect and drive semian-go resources from the command line",
	Long: `semianctl is an operator CLI for semian-go: a host-local library of
bulkheads, circuit-breaker accounting, and adaptive rejection coordinated
across processes through System V IPC.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// contextWithSignals returns a context canceled on SIGINT/SIGTERM, the way
// a long-running `stat --watch` loop exits cleanly on Ctrl-C.
func contextWithSignals() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func init() {
	rootCmd.PersistentFlags().IntVar(&globalPermissions, "perm", 0o660, "unix permission bits for created IPC objects")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "log output format (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(acquireCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(pidCmd)
	rootCmd.AddCommand(windowCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogging() {
	level := slog.LevelInfo
	if globalDebug {
		level = slog.LevelDebug
	}
	logger := logging.NewLogger(logging.Config{
		Level:  level,
		Format: globalLogFormat,
		Output: os.Stderr,
	})
	logging.SetDefault(logger)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print semianctl's version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Println("semianctl " + version)
		return nil
	},
}
