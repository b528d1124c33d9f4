package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "PERF_"

// LoadFromEnv overrides cfg with PERF_* environment variables, e.g.
// PERF_TARGET_BASE_URL, PERF_SCENARIO_USER_COUNT or
// PERF_SCENARIO_ACTOR_MIX=developer:0.7,casual:0.3. Unset variables leave
// the current value alone.
func LoadFromEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}
