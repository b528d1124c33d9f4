package loadtest

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Built-in actor archetypes.
const (
	ActorDeveloper  = "developer"
	ActorCasual     = "casual"
	ActorResearcher = "researcher"
)

// ActorProfile describes how one archetype of virtual user behaves: which
// endpoints it calls, how often, and how long it pauses between calls.
type ActorProfile struct {
	Name      string        `json:"name" yaml:"name"`
	ThinkTime time.Duration `json:"think_time" yaml:"think_time"`
	Endpoints []Endpoint    `json:"endpoints" yaml:"endpoints"`
}

// Validate checks that the profile can drive a virtual user.
func (p ActorProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: profile name is required", ErrInvalidScenario)
	}
	if p.ThinkTime < 0 {
		return fmt.Errorf("%w: profile %q: negative think time", ErrInvalidScenario, p.Name)
	}
	if len(p.Endpoints) == 0 {
		return fmt.Errorf("%w: profile %q has no endpoints", ErrInvalidScenario, p.Name)
	}
	for _, ep := range p.Endpoints {
		if ep.Weight < 0 {
			return fmt.Errorf("%w: profile %q: endpoint %q has negative weight", ErrInvalidScenario, p.Name, ep.Name)
		}
		if ep.Path == "" {
			return fmt.Errorf("%w: profile %q: endpoint %q has no path", ErrInvalidScenario, p.Name, ep.Name)
		}
	}
	return nil
}

// SelectEndpoint draws an endpoint proportionally to its weight. When every
// weight is zero the draw is uniform.
func (p ActorProfile) SelectEndpoint(rng *rand.Rand) Endpoint {
	totalWeight := 0
	for _, ep := range p.Endpoints {
		totalWeight += ep.Weight
	}

	if totalWeight == 0 {
		return p.Endpoints[rng.Intn(len(p.Endpoints))]
	}

	random := rng.Intn(totalWeight)
	currentWeight := 0
	for _, ep := range p.Endpoints {
		currentWeight += ep.Weight
		if random < currentWeight {
			return ep
		}
	}
	return p.Endpoints[0]
}

// NextThinkTime returns the profile's think time with ±25% jitter.
func (p ActorProfile) NextThinkTime(rng *rand.Rand) time.Duration {
	return jitter(p.ThinkTime, rng)
}

func jitter(base time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(float64(base) * (0.75 + rng.Float64()*0.5))
}

// DefaultProfiles returns the built-in developer, casual and researcher
// endpoint tables.
func DefaultProfiles() map[string]ActorProfile {
	return map[string]ActorProfile{
		ActorDeveloper: {
			Name:      ActorDeveloper,
			ThinkTime: 2 * time.Second,
			Endpoints: []Endpoint{
				{Name: "list_sessions", Method: "GET", Path: "/api/sessions", Weight: 20},
				{Name: "create_task", Method: "POST", Path: "/api/tasks", Weight: 25,
					Body: map[string]interface{}{"description": "refactor module", "priority": "normal"}},
				{Name: "task_status", Method: "GET", Path: "/api/tasks/status", Weight: 25},
				{Name: "execute", Method: "POST", Path: "/api/orchestration/execute", Weight: 15,
					Body: map[string]interface{}{"mode": "dual", "prompt": "run the test suite"}},
				{Name: "list_repositories", Method: "GET", Path: "/api/github/repos", Weight: 10},
				{Name: "health", Method: "GET", Path: "/api/health", Weight: 5},
			},
		},
		ActorCasual: {
			Name:      ActorCasual,
			ThinkTime: 5 * time.Second,
			Endpoints: []Endpoint{
				{Name: "health", Method: "GET", Path: "/api/health", Weight: 30},
				{Name: "dashboard", Method: "GET", Path: "/api/dashboard", Weight: 40},
				{Name: "list_sessions", Method: "GET", Path: "/api/sessions", Weight: 20},
				{Name: "settings", Method: "GET", Path: "/api/settings", Weight: 10},
			},
		},
		ActorResearcher: {
			Name:      ActorResearcher,
			ThinkTime: 3500 * time.Millisecond,
			Endpoints: []Endpoint{
				{Name: "search_docs", Method: "GET", Path: "/api/docs/search?q=orchestration", Weight: 35},
				{Name: "history", Method: "GET", Path: "/api/history", Weight: 25},
				{Name: "analyze", Method: "POST", Path: "/api/analysis", Weight: 20,
					Body: map[string]interface{}{"target": "workspace", "depth": 2}},
				{Name: "metrics", Method: "GET", Path: "/api/metrics/summary", Weight: 15},
				{Name: "health", Method: "GET", Path: "/api/health", Weight: 5},
			},
		},
	}
}

// DefaultActorMix is the population split used when a scenario sets none.
func DefaultActorMix() map[string]float64 {
	return map[string]float64{
		ActorDeveloper:  0.5,
		ActorCasual:     0.3,
		ActorResearcher: 0.2,
	}
}

// ProfileNames returns the profile names in sorted order.
func ProfileNames(profiles map[string]ActorProfile) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
