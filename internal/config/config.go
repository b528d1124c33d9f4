package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
	"github.com/meinzeug/autodevai-sub008/internal/logging"
)

// Baseline store drivers
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Report formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatHTML = "html"
)

type Config struct {
	Target     TargetConfig         `yaml:"target" envPrefix:"TARGET_"`
	Scenario   ScenarioConfig       `yaml:"scenario" envPrefix:"SCENARIO_"`
	Monitor    MonitorConfig        `yaml:"monitor" envPrefix:"MONITOR_"`
	Thresholds ThresholdsConfig     `yaml:"thresholds" envPrefix:"THRESHOLD_"`
	Baseline   BaselineConfig       `yaml:"baseline" envPrefix:"BASELINE_"`
	Report     ReportConfig         `yaml:"report" envPrefix:"REPORT_"`
	Server     ServerConfig         `yaml:"server" envPrefix:"SERVER_"`
	Log        logging.LoggerConfig `yaml:"log" envPrefix:"LOG_"`
}

type TargetConfig struct {
	BaseURL   string        `yaml:"base_url" env:"BASE_URL"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRPS    float64       `yaml:"max_rps" env:"MAX_RPS"`
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	APIKey    string        `yaml:"api_key" env:"API_KEY"`
}

type ScenarioConfig struct {
	Suite         string                           `yaml:"suite" env:"SUITE"`
	UserCount     int                              `yaml:"user_count" env:"USER_COUNT"`
	RampUp        time.Duration                    `yaml:"ramp_up" env:"RAMP_UP"`
	TestDuration  time.Duration                    `yaml:"test_duration" env:"TEST_DURATION"`
	BatchInterval time.Duration                    `yaml:"batch_interval" env:"BATCH_INTERVAL"`
	ActorMix      map[string]float64               `yaml:"actor_mix" env:"ACTOR_MIX"`
	Profiles      map[string]loadtest.ActorProfile `yaml:"profiles"`
}

type MonitorConfig struct {
	Interval               time.Duration `yaml:"interval" env:"INTERVAL"`
	CPUThresholdPercent    float64       `yaml:"cpu_threshold_percent" env:"CPU_THRESHOLD_PERCENT"`
	MemoryThresholdPercent float64       `yaml:"memory_threshold_percent" env:"MEMORY_THRESHOLD_PERCENT"`
}

type ThresholdsConfig struct {
	ResponseTimePercent float64 `yaml:"response_time_percent" env:"RESPONSE_TIME_PERCENT"`
	ThroughputPercent   float64 `yaml:"throughput_percent" env:"THROUGHPUT_PERCENT"`
	ErrorRatePoints     float64 `yaml:"error_rate_points" env:"ERROR_RATE_POINTS"`
	MemoryPercent       float64 `yaml:"memory_percent" env:"MEMORY_PERCENT"`
	ImprovementPercent  float64 `yaml:"improvement_percent" env:"IMPROVEMENT_PERCENT"`
}

type BaselineConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	Dir    string `yaml:"dir" env:"DIR"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

type ReportConfig struct {
	Dir     string   `yaml:"dir" env:"DIR"`
	Formats []string `yaml:"formats" env:"FORMATS" envSeparator:","`
	Gzip    bool     `yaml:"gzip" env:"GZIP"`
	S3      S3Config `yaml:"s3" envPrefix:"S3_"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	Prefix    string `yaml:"prefix" env:"PREFIX"`
	Region    string `yaml:"region" env:"REGION"`
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
}

// Enabled reports whether reports should be uploaded.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

type ServerConfig struct {
	// Listen is the status server address; empty disables it.
	Listen string `yaml:"listen" env:"LISTEN"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	monitor := loadtest.DefaultMonitorConfig()
	th := loadtest.DefaultThresholds()
	return &Config{
		Target: TargetConfig{
			BaseURL: "http://localhost:8080",
			Timeout: loadtest.DefaultRequestTimeout,
		},
		Scenario: ScenarioConfig{
			Suite:         loadtest.DefaultTestSuite,
			UserCount:     10,
			RampUp:        30 * time.Second,
			TestDuration:  5 * time.Minute,
			BatchInterval: loadtest.DefaultBatchInterval,
			ActorMix:      loadtest.DefaultActorMix(),
		},
		Monitor: MonitorConfig{
			Interval:               monitor.Interval,
			CPUThresholdPercent:    monitor.CPUThresholdPercent,
			MemoryThresholdPercent: monitor.MemoryThresholdPercent,
		},
		Thresholds: ThresholdsConfig{
			ResponseTimePercent: th.ResponseTimePercent,
			ThroughputPercent:   th.ThroughputPercent,
			ErrorRatePoints:     th.ErrorRatePoints,
			MemoryPercent:       th.MemoryPercent,
			ImprovementPercent:  th.ImprovementPercent,
		},
		Baseline: BaselineConfig{
			Driver: DriverFile,
			Dir:    "./baselines",
		},
		Report: ReportConfig{
			Dir:     "./reports",
			Formats: []string{FormatJSON, FormatCSV, FormatHTML},
		},
		Log: logging.LoggerConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatJSON,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then PERF_ environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile validates the YAML document at path against the config schema
// and merges it into cfg.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := ValidateDocument(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	// yaml merges into existing maps; a mix in the file replaces the default.
	var raw struct {
		Scenario struct {
			ActorMix map[string]float64 `yaml:"actor_mix"`
		} `yaml:"scenario"`
	}
	if err := yaml.Unmarshal(data, &raw); err == nil && raw.Scenario.ActorMix != nil {
		cfg.Scenario.ActorMix = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate checks values that the schema cannot express or that came from
// the environment.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Target.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("target.base_url %q is not an absolute URL", c.Target.BaseURL))
	}
	if c.Target.Timeout < 0 {
		errs = append(errs, errors.New("target.timeout must not be negative"))
	}
	if c.Target.MaxRPS < 0 {
		errs = append(errs, errors.New("target.max_rps must not be negative"))
	}
	if c.Monitor.Interval < 0 {
		errs = append(errs, errors.New("monitor.interval must not be negative"))
	}

	switch c.Baseline.Driver {
	case DriverFile:
		if c.Baseline.Dir == "" {
			errs = append(errs, errors.New("baseline.dir is required for the file driver"))
		}
	case DriverPostgres:
		if c.Baseline.DSN == "" {
			errs = append(errs, errors.New("baseline.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown baseline.driver %q", c.Baseline.Driver))
	}

	for _, f := range c.Report.Formats {
		switch f {
		case FormatJSON, FormatCSV, FormatHTML:
		default:
			errs = append(errs, fmt.Errorf("unknown report format %q", f))
		}
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// LoadScenario converts the scenario section. Validation happens when the
// scenario is run.
func (c *Config) LoadScenario() loadtest.Scenario {
	return loadtest.Scenario{
		TestSuite:     c.Scenario.Suite,
		UserCount:     c.Scenario.UserCount,
		RampUp:        c.Scenario.RampUp,
		TestDuration:  c.Scenario.TestDuration,
		BatchInterval: c.Scenario.BatchInterval,
		ActorMix:      c.Scenario.ActorMix,
		Profiles:      c.Scenario.Profiles,
	}.WithDefaults()
}

func (c *Config) SamplerConfig() loadtest.SamplerConfig {
	return loadtest.SamplerConfig{
		BaseURL:   c.Target.BaseURL,
		Timeout:   c.Target.Timeout,
		MaxRPS:    c.Target.MaxRPS,
		JWTSecret: c.Target.JWTSecret,
		APIKey:    c.Target.APIKey,
	}
}

func (c *Config) MonitorConfig() loadtest.MonitorConfig {
	return loadtest.MonitorConfig{
		Interval:               c.Monitor.Interval,
		CPUThresholdPercent:    c.Monitor.CPUThresholdPercent,
		MemoryThresholdPercent: c.Monitor.MemoryThresholdPercent,
		TestSuite:              c.Scenario.Suite,
	}
}

func (c *Config) RegressionThresholds() loadtest.Thresholds {
	return loadtest.Thresholds{
		ResponseTimePercent: c.Thresholds.ResponseTimePercent,
		ThroughputPercent:   c.Thresholds.ThroughputPercent,
		ErrorRatePoints:     c.Thresholds.ErrorRatePoints,
		MemoryPercent:       c.Thresholds.MemoryPercent,
		ImprovementPercent:  c.Thresholds.ImprovementPercent,
	}
}
