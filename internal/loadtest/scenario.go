package loadtest

import (
	"fmt"
	"time"
)

// DefaultTestSuite names runs that set no suite.
const DefaultTestSuite = "default"

// Scenario describes one load run. Profiles and ActorMix are read-only once
// the run starts.
type Scenario struct {
	TestSuite     string                  `json:"test_suite" yaml:"suite"`
	UserCount     int                     `json:"user_count" yaml:"user_count"`
	RampUp        time.Duration           `json:"ramp_up" yaml:"ramp_up"`
	TestDuration  time.Duration           `json:"test_duration" yaml:"test_duration"`
	BatchInterval time.Duration           `json:"batch_interval" yaml:"batch_interval"`
	ActorMix      map[string]float64      `json:"actor_mix" yaml:"actor_mix"`
	Profiles      map[string]ActorProfile `json:"profiles,omitempty" yaml:"profiles"`
}

// WithDefaults fills unset optional fields. UserCount and TestDuration are
// never defaulted here; zero values fail validation.
func (s Scenario) WithDefaults() Scenario {
	if s.TestSuite == "" {
		s.TestSuite = DefaultTestSuite
	}
	if s.BatchInterval <= 0 {
		s.BatchInterval = DefaultBatchInterval
	}
	if len(s.ActorMix) == 0 {
		s.ActorMix = DefaultActorMix()
	}
	if len(s.Profiles) == 0 {
		s.Profiles = DefaultProfiles()
	} else {
		profiles := make(map[string]ActorProfile, len(s.Profiles))
		for name, p := range s.Profiles {
			if p.Name == "" {
				p.Name = name
			}
			profiles[name] = p
		}
		s.Profiles = profiles
	}
	return s
}

// Validate rejects scenarios that cannot run. Every failure wraps
// ErrInvalidScenario.
func (s Scenario) Validate() error {
	if s.TestSuite == "" {
		return fmt.Errorf("%w: test suite name is required", ErrInvalidScenario)
	}
	if s.UserCount <= 0 {
		return fmt.Errorf("%w: user count must be positive, got %d", ErrInvalidScenario, s.UserCount)
	}
	if s.TestDuration <= 0 {
		return fmt.Errorf("%w: test duration must be positive, got %s", ErrInvalidScenario, s.TestDuration)
	}
	if s.RampUp < 0 {
		return fmt.Errorf("%w: ramp-up must not be negative, got %s", ErrInvalidScenario, s.RampUp)
	}
	if s.RampUp > s.TestDuration {
		return fmt.Errorf("%w: ramp-up %s exceeds test duration %s", ErrInvalidScenario, s.RampUp, s.TestDuration)
	}
	if s.BatchInterval < 0 {
		return fmt.Errorf("%w: batch interval must not be negative", ErrInvalidScenario)
	}
	if len(s.ActorMix) == 0 {
		return fmt.Errorf("%w: actor mix is empty", ErrInvalidScenario)
	}

	var total float64
	for name, w := range s.ActorMix {
		if w < 0 {
			return fmt.Errorf("%w: actor type %q has negative share", ErrInvalidScenario, name)
		}
		if w == 0 {
			continue
		}
		total += w
		profile, ok := s.Profiles[name]
		if !ok {
			return fmt.Errorf("%w: no profile for actor type %q", ErrInvalidScenario, name)
		}
		if err := profile.Validate(); err != nil {
			return err
		}
	}
	if total == 0 {
		return fmt.Errorf("%w: actor mix has no positive share", ErrInvalidScenario)
	}
	return nil
}
