package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noah-isme/civic-tracker-api/pkg/config"
)

var cliViper = config.NewViper()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trackerctl",
		Short:         "Operate a civic tracker data directory",
		Long:          "trackerctl runs maintenance tasks against the tracker's entity store: delay sweeps, seeding, statistics and exports.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("data-dir", "", "snapshot directory (default: STORE_DATA_DIR or .data)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (console, json)")
	bindFlag(root, "STORE_DATA_DIR", "data-dir")
	bindFlag(root, "LOG_LEVEL", "log-level")
	bindFlag(root, "LOG_FORMAT", "log-format")

	root.AddCommand(sweepCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(exportCmd())
	return root
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	_ = cliViper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration from the environment, with flags taking precedence.
func loadConfig(v *viper.Viper) *config.Config {
	cfg := config.FromViper(v)
	// Commands exit right after their work, so async snapshots would be lost.
	cfg.Store.SnapshotPolicy = config.SnapshotSync
	return cfg
}
