package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ActorState is the lifecycle of a VirtualUser.
type ActorState int

const (
	ActorStarting ActorState = iota
	ActorRunning
	ActorStopping
	ActorStopped
)

func (s ActorState) String() string {
	switch s {
	case ActorStarting:
		return "starting"
	case ActorRunning:
		return "running"
	case ActorStopping:
		return "stopping"
	case ActorStopped:
		return "stopped"
	default:
		return fmt.Sprintf("ActorState(%d)", int(s))
	}
}

// VirtualUser is one simulated client. It loops select, request, think until
// its deadline passes or ctx is canceled. An in-flight request is bounded only
// by the sampler's own timeout.
type VirtualUser struct {
	id       string
	profile  ActorProfile
	sampler  Sampler
	sink     MeasurementSink
	deadline time.Time
	rng      *rand.Rand
	logger   *zap.Logger

	mu    sync.Mutex
	state ActorState
}

// NewVirtualUser creates an actor in the Starting state. rng must not be
// shared with other actors; nil seeds a fresh source.
func NewVirtualUser(id string, profile ActorProfile, sampler Sampler, sink MeasurementSink, deadline time.Time, rng *rand.Rand, logger *zap.Logger) *VirtualUser {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VirtualUser{
		id:       id,
		profile:  profile,
		sampler:  sampler,
		sink:     sink,
		deadline: deadline,
		rng:      rng,
		logger:   logger,
		state:    ActorStarting,
	}
}

// ID returns the actor's identifier.
func (v *VirtualUser) ID() string { return v.id }

// State returns the current lifecycle state.
func (v *VirtualUser) State() ActorState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *VirtualUser) setState(s ActorState) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

// Run drives the actor until its deadline and returns the finalized session.
// A panic inside the loop is recovered and counted as an error on a crashed
// session.
func (v *VirtualUser) Run(ctx context.Context) (session ActorSession) {
	session = ActorSession{
		ActorID:   v.id,
		ActorType: v.profile.Name,
		StartTime: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			session.ErrorCount++
			session.Crashed = true
			v.logger.Error("virtual user crashed",
				zap.String("actor_id", v.id),
				zap.String("actor_type", v.profile.Name),
				zap.Any("panic", r))
		}
		end := time.Now()
		session.EndTime = &end
		v.setState(ActorStopped)
	}()

	v.setState(ActorRunning)
	v.loop(ctx, &session)
	v.setState(ActorStopping)
	return session
}

func (v *VirtualUser) loop(ctx context.Context, session *ActorSession) {
	var last time.Time
	for v.active(ctx) {
		ep := v.profile.SelectEndpoint(v.rng)
		m := v.sampler.Sample(ctx, Request{
			Endpoint:  ep,
			ActorID:   v.id,
			ActorType: v.profile.Name,
			Deadline:  v.deadline,
		})
		if m.Dropped {
			return
		}
		m.ActorID = v.id
		m.ActorType = v.profile.Name
		if m.Timestamp.Before(last) {
			m.Timestamp = last
		}
		last = m.Timestamp

		session.RequestCount++
		if !m.Success {
			session.ErrorCount++
		}
		if v.sink != nil {
			v.sink.Record(m)
		}

		if !v.think(ctx) {
			return
		}
	}
}

func (v *VirtualUser) active(ctx context.Context) bool {
	return ctx.Err() == nil && time.Now().Before(v.deadline)
}

// think sleeps a jittered think time, cut short by the deadline or ctx. It
// reports whether the loop should continue.
func (v *VirtualUser) think(ctx context.Context) bool {
	d := v.profile.NextThinkTime(v.rng)
	remaining := time.Until(v.deadline)
	if remaining <= 0 {
		return false
	}
	if d > remaining {
		d = remaining
	}
	if d <= 0 {
		return v.active(ctx)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return v.active(ctx)
	}
}
