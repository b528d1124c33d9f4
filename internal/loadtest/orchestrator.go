package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Phase is the coarse progress of a run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRamping   Phase = "ramping"
	PhaseRunning   Phase = "running"
	PhaseAnalyzing Phase = "analyzing"
	PhaseCompleted Phase = "completed"
)

// OrchestratorOptions wires an Orchestrator's collaborators. Only Sampler is
// required.
type OrchestratorOptions struct {
	Sampler     Sampler
	Store       BaselineStore
	Reader      ResourceReader
	Monitor     MonitorConfig
	Thresholds  Thresholds
	Observer    Observer
	Environment map[string]string
	BufferSize  int
	Seed        int64
	Logger      *zap.Logger
}

// Progress is a point-in-time view of the current or last run.
type Progress struct {
	RunID          string    `json:"run_id,omitempty"`
	TestSuite      string    `json:"test_suite,omitempty"`
	Phase          Phase     `json:"phase"`
	StartTime      time.Time `json:"start_time,omitempty"`
	TargetActors   int       `json:"target_actors"`
	StartedActors  int       `json:"started_actors"`
	ActiveActors   int       `json:"active_actors"`
	FinishedActors int       `json:"finished_actors"`
	Measurements   int       `json:"measurements"`
	Alerts         int       `json:"alerts"`
}

// Orchestrator runs load scenarios. One run at a time.
type Orchestrator struct {
	opts     OrchestratorOptions
	analyzer *RegressionAnalyzer
	observer Observer
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	current *runState
}

// runState is everything one run shares between its tasks.
type runState struct {
	id       string
	scenario Scenario
	start    time.Time

	phase    atomic.Value // Phase
	started  atomic.Int64
	active   atomic.Int64
	finished atomic.Int64

	measurements *measurementBuffer
	alerts       *AlertLog

	mu       sync.Mutex
	sessions []ActorSession
}

func (rs *runState) setPhase(p Phase) { rs.phase.Store(p) }

func (rs *runState) activeCount() int { return int(rs.active.Load()) }

func (rs *runState) addSession(s ActorSession) {
	rs.mu.Lock()
	rs.sessions = append(rs.sessions, s)
	rs.mu.Unlock()
}

// NewOrchestrator validates options and applies defaults.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Sampler == nil {
		return nil, fmt.Errorf("%w: sampler is required", ErrInvalidScenario)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Monitor.Interval <= 0 {
		opts.Monitor.Interval = DefaultSampleInterval
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 4096
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{
		opts:     opts,
		analyzer: NewRegressionAnalyzer(opts.Thresholds, opts.Store, opts.Logger),
		observer: observer,
		logger:   opts.Logger,
	}, nil
}

// Progress reports on the run in flight, or the last finished one.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	rs := o.current
	o.mu.Unlock()
	if rs == nil {
		return Progress{Phase: PhaseIdle}
	}
	phase, _ := rs.phase.Load().(Phase)
	return Progress{
		RunID:          rs.id,
		TestSuite:      rs.scenario.TestSuite,
		Phase:          phase,
		StartTime:      rs.start,
		TargetActors:   rs.scenario.UserCount,
		StartedActors:  int(rs.started.Load()),
		ActiveActors:   rs.activeCount(),
		FinishedActors: int(rs.finished.Load()),
		Measurements:   rs.measurements.Len(),
		Alerts:         rs.alerts.Len(),
	}
}

// Run executes the scenario and returns its result. Invalid scenarios fail
// before any goroutine is started. Canceling ctx ends every actor early; the
// partial run is still analyzed and returned.
func (o *Orchestrator) Run(ctx context.Context, sc Scenario) (*LoadTestResult, error) {
	sc = sc.WithDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.running = true
	rs := &runState{
		id:           uuid.New().String(),
		scenario:     sc,
		start:        time.Now(),
		measurements: newMeasurementBuffer(o.opts.BufferSize, o.observer),
		alerts:       NewAlertLog(o.observer),
	}
	rs.setPhase(PhaseRamping)
	o.current = rs
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	logger := o.logger.With(zap.String("run_id", rs.id), zap.String("test_suite", sc.TestSuite))
	logger.Info("load test started",
		zap.Int("users", sc.UserCount),
		zap.Duration("ramp_up", sc.RampUp),
		zap.Duration("duration", sc.TestDuration))

	monitorCfg := o.opts.Monitor
	monitorCfg.TestSuite = sc.TestSuite
	monitor := NewResourceMonitor(monitorCfg, o.opts.Reader, rs.activeCount, rs.alerts, logger)
	monitor.SetObserver(o.observer)
	if err := monitor.Start(monitorCfg.Interval); err != nil {
		return nil, fmt.Errorf("start resource monitor: %w", err)
	}

	plan := PlanRampUp(sc.UserCount, sc.RampUp, sc.BatchInterval)
	o.launch(ctx, rs, plan, logger)

	monitor.Stop()
	rs.setPhase(PhaseAnalyzing)

	result := o.assemble(ctx, rs, plan, monitor.Snapshots(), logger)
	rs.setPhase(PhaseCompleted)

	logger.Info("load test completed",
		zap.Int("requests", result.Statistics.Count),
		zap.Float64("success_rate", result.Statistics.SuccessRate),
		zap.Float64("avg_response_ms", result.Statistics.ResponseTime.Avg),
		zap.Int("alerts", len(result.Alerts)))
	return result, nil
}

// launch starts each ramp-up batch in its slot and waits for every actor.
func (o *Orchestrator) launch(ctx context.Context, rs *runState, plan []RampBatch, logger *zap.Logger) {
	sc := rs.scenario
	types := assignActorTypes(sc.UserCount, sc.ActorMix)
	deadline := rs.start.Add(sc.TestDuration)
	seed := o.opts.Seed
	if seed == 0 {
		seed = rs.start.UnixNano()
	}

	g, gctx := errgroup.WithContext(ctx)
	slot := 0

ramp:
	for _, batch := range plan {
		if wait := time.Until(rs.start.Add(batch.Offset)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Warn("ramp-up interrupted", zap.Int("batch", batch.Index), zap.Error(ctx.Err()))
				break ramp
			case <-timer.C:
			}
		}

		logger.Info("starting ramp-up batch",
			zap.Int("batch", batch.Index),
			zap.Int("size", batch.Size),
			zap.Duration("offset", batch.Offset))

		for i := 0; i < batch.Size; i++ {
			actorType := types[slot]
			vu := NewVirtualUser(
				fmt.Sprintf("%s-%d", actorType, slot+1),
				sc.Profiles[actorType],
				o.opts.Sampler,
				rs.measurements,
				deadline,
				rand.New(rand.NewSource(seed+int64(slot))),
				logger,
			)
			slot++

			rs.started.Add(1)
			rs.active.Add(1)
			o.observer.ActorStarted(actorType)
			g.Go(func() error {
				defer func() {
					rs.active.Add(-1)
					rs.finished.Add(1)
					o.observer.ActorStopped(actorType)
				}()
				logger.Debug("virtual user started", zap.String("actor_id", vu.ID()))
				session := vu.Run(gctx)
				rs.addSession(session)
				logger.Debug("virtual user finished",
					zap.String("actor_id", session.ActorID),
					zap.Int("requests", session.RequestCount),
					zap.Int("errors", session.ErrorCount))
				return nil
			})
		}
		if batch.Index == len(plan)-1 {
			rs.setPhase(PhaseRunning)
		}
	}

	_ = g.Wait()
}

func (o *Orchestrator) assemble(ctx context.Context, rs *runState, plan []RampBatch, snapshots []ResourceSnapshot, logger *zap.Logger) *LoadTestResult {
	sc := rs.scenario
	measurements := rs.measurements.Close()

	result := &LoadTestResult{
		RunID:            rs.id,
		Scenario:         sc,
		RampPlan:         plan,
		StartTime:        rs.start,
		EndTime:          time.Now(),
		SessionResults:   summarizeSessions(rs.sessions),
		Statistics:       ComputeStatistics(measurements),
		EndpointStats:    EndpointStatistics(measurements),
		ResourceAnalysis: AnalyzeResources(snapshots),
		Measurements:     measurements,
	}

	// Analysis runs even when the run itself was canceled.
	actx := context.WithoutCancel(ctx)
	var baseline *Baseline
	if o.opts.Store != nil {
		b, err := o.opts.Store.Load(actx, sc.TestSuite)
		if err != nil {
			// A read failure must not be mistaken for a first run, or the
			// existing baseline would be overwritten.
			logger.Warn("baseline unavailable, skipping comparison", zap.Error(err))
			result.Comparison = &Comparison{
				TestSuite: sc.TestSuite,
				Metrics:   map[string]MetricComparison{},
				Status:    StatusUnavailable,
			}
			result.Alerts = rs.alerts.Alerts()
			return result
		}
		baseline = b
	}

	current := CurrentMetrics{
		Statistics:  result.Statistics,
		Resources:   result.ResourceAnalysis.Summary(),
		Environment: o.opts.Environment,
	}
	analysis, err := o.analyzer.Analyze(actx, sc.TestSuite, current, baseline)
	if err != nil {
		logger.Warn("baseline analysis degraded", zap.Error(err))
	}
	if analysis != nil {
		result.Comparison = analysis.Comparison
		for _, a := range analysis.Alerts {
			rs.alerts.Emit(a)
		}
	}
	result.Alerts = rs.alerts.Alerts()
	return result
}

func summarizeSessions(sessions []ActorSession) SessionResults {
	sorted := make([]ActorSession, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].StartTime.Before(sorted[j].StartTime)
		}
		return sorted[i].ActorID < sorted[j].ActorID
	})

	byType := make(map[string]*ActorTypeSummary)
	for _, s := range sorted {
		sum, ok := byType[s.ActorType]
		if !ok {
			sum = &ActorTypeSummary{ActorType: s.ActorType}
			byType[s.ActorType] = sum
		}
		sum.Sessions++
		sum.Requests += s.RequestCount
		sum.Errors += s.ErrorCount
		if s.Crashed {
			sum.Crashed++
		}
	}
	return SessionResults{Sessions: sorted, ByType: byType}
}

// UpdateBaseline replaces the suite's baseline with the result of a run.
func UpdateBaseline(ctx context.Context, store BaselineStore, result *LoadTestResult, environment map[string]string) (*Baseline, error) {
	if store == nil {
		return nil, fmt.Errorf("no baseline store configured")
	}
	if result == nil {
		return nil, fmt.Errorf("no result to promote")
	}
	return store.Save(ctx, result.Scenario.TestSuite, result.Statistics, result.ResourceAnalysis.Summary(), environment)
}
