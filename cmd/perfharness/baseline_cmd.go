package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meinzeug/autodevai-sub008/internal/reporting"
)

func newBaselineCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Inspect or replace stored baselines",
	}
	cmd.AddCommand(newBaselineShowCmd(root))
	cmd.AddCommand(newBaselineUpdateCmd(root))
	return cmd
}

func newBaselineShowCmd(root *rootOptions) *cobra.Command {
	var (
		suite   string
		history int
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the baseline of a test suite as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if suite == "" {
				suite = cfg.Scenario.Suite
			}

			backend, err := openBaselineStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = backend.close() }()

			var out interface{}
			if history > 0 {
				if backend.pg == nil {
					return errors.New("--history requires the postgres baseline driver")
				}
				records, err := backend.pg.History(cmd.Context(), suite, history)
				if err != nil {
					return err
				}
				out = records
			} else {
				b, err := backend.store.Load(cmd.Context(), suite)
				if err != nil {
					return err
				}
				if b == nil {
					return fmt.Errorf("no baseline for suite %q", suite)
				}
				out = b
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&suite, "suite", "", "test suite (default: scenario.suite)")
	cmd.Flags().IntVar(&history, "history", 0, "print the last N saved baselines instead")
	return cmd
}

func newBaselineUpdateCmd(root *rootOptions) *cobra.Command {
	var flags scenarioFlags
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run the suite and store the result as its new baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			flags.apply(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := runScenario(ctx, cfg, logger, flags.seed, true)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), reporting.Summary(result))
			fmt.Fprintf(cmd.OutOrStdout(), "baseline for %s updated from run %s (%d requests)\n",
				result.Scenario.TestSuite, result.RunID, result.Statistics.Count)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
