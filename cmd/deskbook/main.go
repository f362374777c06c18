package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/desk-reservations/internal/config"
	"github.com/example/desk-reservations/internal/logging"
	"github.com/example/desk-reservations/internal/persistence/workbook"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}

	root := &cobra.Command{
		Use:           "deskbook",
		Short:         "Desk reservation service",
		Long:          `Books shared and named office desks by half-day and serves the reservation API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a configuration file (yaml, json or toml)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newInitCmd(opts))
	root.AddCommand(newSeedCmd(opts))
	return root
}

// bootstrap loads configuration and builds the process logger.
func (o *rootOptions) bootstrap() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, o.out)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func openStore(cfg config.Config, logger *slog.Logger) (*workbook.Store, error) {
	store, err := workbook.Open(workbook.Options{
		DataFile:       cfg.DataFile,
		BackupDir:      cfg.BackupDir,
		LockFile:       cfg.LockFile,
		LockTimeout:    cfg.LockTimeout,
		LockRetryDelay: cfg.LockRetryDelay,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}
