package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meinzeug/autodevai-sub008/internal/config"
	"github.com/meinzeug/autodevai-sub008/internal/logging"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "perfharness",
		Short:         "Load simulation and performance regression harness",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (PERF_* environment variables override it)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newBaselineCmd(opts))
	cmd.AddCommand(newProfilesCmd(opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// load reads the configuration and builds the logger every command uses.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(&cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
