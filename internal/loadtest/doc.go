// Package loadtest drives simulated user populations against an HTTP target
// and checks the outcome against a stored performance baseline.
//
// # Overview
//
// A run is described by a Scenario and executed by an Orchestrator:
//
//   - Virtual users are started in ramp-up batches, one batch per interval
//   - Each VirtualUser loops: pick a weighted endpoint, issue it through a
//     Sampler, pause for a jittered think time
//   - A ResourceMonitor samples CPU and memory on its own timer
//   - Measurements are reduced to Statistics once every actor has finished
//   - A RegressionAnalyzer compares the Statistics with the suite's Baseline
//
// # Quick Start
//
//	sampler, _ := loadtest.NewHTTPSampler(loadtest.SamplerConfig{
//	    BaseURL: "http://localhost:8080",
//	}, logger)
//
//	orch, _ := loadtest.NewOrchestrator(loadtest.OrchestratorOptions{
//	    Sampler: sampler,
//	    Store:   loadtest.NewFileBaselineStore("./baselines"),
//	    Logger:  logger,
//	})
//
//	result, err := orch.Run(ctx, loadtest.Scenario{
//	    TestSuite:    "api",
//	    UserCount:    100,
//	    RampUp:       30 * time.Second,
//	    TestDuration: 5 * time.Minute,
//	})
//	for _, a := range result.Regressions() {
//	    fmt.Println(a.Message)
//	}
//
// # Ramp-up
//
// Users are split into equal batches of ceil(users / (rampUp/interval)),
// started every interval (5s by default). 100 users over 30s start as
// 17, 17, 17, 17, 17, 15. Every actor stops at the run's start time plus the
// test duration, whatever its batch.
//
// # Baselines
//
// The first run of a suite records its statistics as the baseline and raises
// no alerts. Later runs are compared without touching the stored baseline;
// replacing it is an explicit UpdateBaseline call.
//
// Default thresholds:
//
//   - Average and p95 response time: +20%
//   - Throughput: -15%
//   - Error rate: +5 percentage points
//   - Peak memory: +25%
//
// An average response time more than 10% faster than baseline produces an
// informational improvement alert.
//
// # Failures
//
// Transport failures and 5xx responses are recorded as failed measurements;
// a run against a dead target still completes with an error rate near 100%.
// Missing or corrupt baselines count as absent. Only scenario validation
// errors, which wrap ErrInvalidScenario, are returned from Run.
package loadtest
