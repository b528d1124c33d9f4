package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meinzeug/autodevai-sub008/internal/api"
	"github.com/meinzeug/autodevai-sub008/internal/config"
	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
	"github.com/meinzeug/autodevai-sub008/internal/metrics"
	"github.com/meinzeug/autodevai-sub008/internal/reporting"
)

var errRegression = errors.New("performance regression detected")

// scenarioFlags are the per-invocation overrides shared by commands that run
// a scenario.
type scenarioFlags struct {
	suite    string
	users    int
	duration time.Duration
	rampUp   time.Duration
	seed     int64
}

func (f *scenarioFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.suite, "suite", "", "override scenario.suite")
	cmd.Flags().IntVar(&f.users, "users", 0, "override scenario.user_count")
	cmd.Flags().DurationVar(&f.duration, "duration", 0, "override scenario.test_duration")
	cmd.Flags().DurationVar(&f.rampUp, "ramp-up", 0, "override scenario.ramp_up")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "seed for endpoint selection and think times (0 = time based)")
}

func (f *scenarioFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("suite") {
		cfg.Scenario.Suite = f.suite
	}
	if cmd.Flags().Changed("users") {
		cfg.Scenario.UserCount = f.users
	}
	if cmd.Flags().Changed("duration") {
		cfg.Scenario.TestDuration = f.duration
	}
	if cmd.Flags().Changed("ramp-up") {
		cfg.Scenario.RampUp = f.rampUp
	}
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		flags            scenarioFlags
		updateBaseline   bool
		failOnRegression bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load scenario and compare it with the suite's baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			flags.apply(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := runScenario(ctx, cfg, logger, flags.seed, updateBaseline)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), reporting.Summary(result))
			if failOnRegression && len(result.Regressions()) > 0 {
				return errRegression
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&updateBaseline, "update-baseline", false, "replace the suite's baseline with this run")
	cmd.Flags().BoolVar(&failOnRegression, "fail-on-regression", false, "exit non-zero when a regression alert is raised")
	return cmd
}

func runScenario(ctx context.Context, cfg *config.Config, logger *zap.Logger, seed int64, updateBaseline bool) (*loadtest.LoadTestResult, error) {
	scenario := cfg.LoadScenario()
	// Configuration errors surface before anything is started.
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	backend, err := openBaselineStore(ctx, cfg, logger)
	switch {
	case errors.Is(err, errStoreUnavailable) && !updateBaseline:
		logger.Warn("running without a baseline", zap.Error(err))
		backend = &baselineBackend{close: func() error { return nil }}
	case err != nil:
		return nil, err
	}
	defer func() { _ = backend.close() }()

	sampler, err := loadtest.NewHTTPSampler(cfg.SamplerConfig(), logger)
	if err != nil {
		return nil, err
	}

	collector, err := metrics.NewCollector(&metrics.CollectorConfig{
		ConstLabels: prometheus.Labels{"suite": scenario.TestSuite},
	})
	if err != nil {
		return nil, err
	}

	environment := loadtest.CaptureEnvironment(cfg.Target.BaseURL)
	orch, err := loadtest.NewOrchestrator(loadtest.OrchestratorOptions{
		Sampler:     sampler,
		Store:       backend.store,
		Reader:      loadtest.NewSystemResourceReader(),
		Monitor:     cfg.MonitorConfig(),
		Thresholds:  cfg.RegressionThresholds(),
		Observer:    collector,
		Environment: environment,
		Seed:        seed,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Server.Listen != "" {
		srv := api.NewServer(cfg.Server.Listen, orch, collector.Handler(), logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	result, err := orch.Run(ctx, scenario)
	if err != nil {
		return nil, err
	}

	// Reports and baseline updates still happen after an interrupt.
	postCtx := context.WithoutCancel(ctx)

	if updateBaseline && (result.Comparison == nil || !result.Comparison.BaselineCreated) {
		b, err := loadtest.UpdateBaseline(postCtx, backend.store, result, environment)
		if err != nil {
			return nil, fmt.Errorf("update baseline: %w", err)
		}
		logger.Info("baseline updated",
			zap.String("test_suite", b.TestSuite),
			zap.Time("created_at", b.CreatedAt))
	}

	if err := writeReports(postCtx, cfg, result, logger); err != nil {
		return nil, err
	}
	return result, nil
}

func writeReports(ctx context.Context, cfg *config.Config, result *loadtest.LoadTestResult, logger *zap.Logger) error {
	if len(cfg.Report.Formats) == 0 {
		return nil
	}
	gen, err := reporting.NewReportGenerator(&reporting.GeneratorConfig{
		Dir:     cfg.Report.Dir,
		Formats: cfg.Report.Formats,
		Gzip:    cfg.Report.Gzip,
	}, logger)
	if err != nil {
		return err
	}
	report, err := gen.Generate(ctx, result)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	if !cfg.Report.S3.Enabled() {
		return nil
	}
	s3cfg := cfg.Report.S3
	client, err := reporting.NewS3Client(ctx, reporting.S3Config{
		Bucket:    s3cfg.Bucket,
		Prefix:    s3cfg.Prefix,
		Region:    s3cfg.Region,
		Endpoint:  s3cfg.Endpoint,
		AccessKey: s3cfg.AccessKey,
		SecretKey: s3cfg.SecretKey,
	})
	if err != nil {
		return err
	}
	pub, err := reporting.NewS3Publisher(client, s3cfg.Bucket, s3cfg.Prefix, logger)
	if err != nil {
		return err
	}
	if _, err := pub.Publish(ctx, report); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}
