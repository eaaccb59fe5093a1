package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
	"github.com/harborgate/intake-monitoring-backend/internal/service/monitoring"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Telemetry TelemetryConfig `koanf:"telemetry"`

	Detection DetectionConfig `koanf:"detection"`
	Response  ResponseConfig  `koanf:"response"`
	Sweeps    SweepsConfig    `koanf:"sweeps"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	ServiceName  string `koanf:"service_name"`
}

type DetectionConfig struct {
	RapidWindow         time.Duration `koanf:"rapid_window"`
	RapidThreshold      int           `koanf:"rapid_threshold"`
	DuplicateWindow     time.Duration `koanf:"duplicate_window"`
	DuplicateThreshold  int           `koanf:"duplicate_threshold"`
	FailedWindow        time.Duration `koanf:"failed_window"`
	FailedThreshold     int           `koanf:"failed_threshold"`
	NetworkThreshold    float64       `koanf:"network_threshold"`
	BehavioralThreshold float64       `koanf:"behavioral_threshold"`
	LocationWindow      time.Duration `koanf:"location_window"`
	BaselineCapacity    int           `koanf:"baseline_capacity"`

	SeverityBands SeverityBandsConfig `koanf:"severity_bands"`
}

// SeverityBandsConfig holds the risk-score cutoffs for each severity band.
type SeverityBandsConfig struct {
	Low      float64 `koanf:"low"`
	Medium   float64 `koanf:"medium"`
	High     float64 `koanf:"high"`
	Critical float64 `koanf:"critical"`
}

type ResponseConfig struct {
	AutoBlock      bool          `koanf:"auto_block"`
	AutoEscalate   bool          `koanf:"auto_escalate"`
	RealTimeAlerts bool          `koanf:"real_time_alerts"`
	AlertCooldown  time.Duration `koanf:"alert_cooldown"`
	ActionWorkers  int           `koanf:"action_workers"`
	ActionTimeout  time.Duration `koanf:"action_timeout"`
	NotifyRate     float64       `koanf:"notify_rate"`
}

type SweepsConfig struct {
	RapidInterval      time.Duration `koanf:"rapid_interval"`
	DuplicateInterval  time.Duration `koanf:"duplicate_interval"`
	FailedInterval     time.Duration `koanf:"failed_interval"`
	BehavioralInterval time.Duration `koanf:"behavioral_interval"`
	PruneInterval      time.Duration `koanf:"prune_interval"`
	Timeout            time.Duration `koanf:"timeout"`
	BaselineMaxIdle    time.Duration `koanf:"baseline_max_idle"`
}

// Load reads configuration in order of precedence: built-in defaults, then
// configs/config.yaml when present, then INTAKE_-prefixed environment
// variables. Double underscore separates sections so single underscores
// survive in key names: INTAKE_DETECTION__RAPID_THRESHOLD=10 sets
// detection.rapid_threshold.
func Load() (*Config, error) {
	return LoadFrom("configs/config.yaml")
}

// LoadFrom loads configuration with an explicit config file path.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional.
	_ = k.Load(file.Provider(path), yaml.Parser())

	if err := k.Load(env.Provider("INTAKE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "INTAKE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func defaults() *Config {
	mon := monitoring.DefaultConfig()
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Database: DatabaseConfig{
			URL:             "postgres://localhost:5432/intake_monitoring?sslmode=disable",
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL: "localhost:6379",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "intake-monitoring",
		},
		Detection: DetectionConfig{
			RapidWindow:         mon.RapidWindow,
			RapidThreshold:      mon.RapidThreshold,
			DuplicateWindow:     mon.DuplicateWindow,
			DuplicateThreshold:  mon.DuplicateThreshold,
			FailedWindow:        mon.FailedWindow,
			FailedThreshold:     mon.FailedThreshold,
			NetworkThreshold:    mon.NetworkThreshold,
			BehavioralThreshold: mon.BehavioralThreshold,
			LocationWindow:      mon.LocationWindow,
			BaselineCapacity:    mon.BaselineCapacity,
			SeverityBands: SeverityBandsConfig{
				Low:      mon.SeverityBands.Low,
				Medium:   mon.SeverityBands.Medium,
				High:     mon.SeverityBands.High,
				Critical: mon.SeverityBands.Critical,
			},
		},
		Response: ResponseConfig{
			AutoBlock:      mon.AutoBlock,
			AutoEscalate:   mon.AutoEscalate,
			RealTimeAlerts: mon.RealTimeAlerts,
			AlertCooldown:  mon.AlertCooldown,
			ActionWorkers:  mon.ActionWorkers,
			ActionTimeout:  mon.ActionTimeout,
			NotifyRate:     mon.NotifyRate,
		},
		Sweeps: SweepsConfig{
			RapidInterval:      mon.Sweeps.RapidInterval,
			DuplicateInterval:  mon.Sweeps.DuplicateInterval,
			FailedInterval:     mon.Sweeps.FailedInterval,
			BehavioralInterval: mon.Sweeps.BehavioralInterval,
			PruneInterval:      mon.Sweeps.PruneInterval,
			Timeout:            mon.Sweeps.Timeout,
			BaselineMaxIdle:    mon.Sweeps.BaselineMaxIdle,
		},
	}
}

// Monitoring maps the loaded configuration onto the engine's settings.
func (c *Config) Monitoring() monitoring.Config {
	mon := monitoring.DefaultConfig()

	mon.RapidWindow = c.Detection.RapidWindow
	mon.RapidThreshold = c.Detection.RapidThreshold
	mon.DuplicateWindow = c.Detection.DuplicateWindow
	mon.DuplicateThreshold = c.Detection.DuplicateThreshold
	mon.FailedWindow = c.Detection.FailedWindow
	mon.FailedThreshold = c.Detection.FailedThreshold
	mon.NetworkThreshold = c.Detection.NetworkThreshold
	mon.BehavioralThreshold = c.Detection.BehavioralThreshold
	mon.LocationWindow = c.Detection.LocationWindow
	mon.BaselineCapacity = c.Detection.BaselineCapacity
	mon.SeverityBands = activity.SeverityBands{
		Low:      c.Detection.SeverityBands.Low,
		Medium:   c.Detection.SeverityBands.Medium,
		High:     c.Detection.SeverityBands.High,
		Critical: c.Detection.SeverityBands.Critical,
	}

	mon.AutoBlock = c.Response.AutoBlock
	mon.AutoEscalate = c.Response.AutoEscalate
	mon.RealTimeAlerts = c.Response.RealTimeAlerts
	mon.AlertCooldown = c.Response.AlertCooldown
	mon.ActionWorkers = c.Response.ActionWorkers
	mon.ActionTimeout = c.Response.ActionTimeout
	mon.NotifyRate = c.Response.NotifyRate

	mon.Sweeps = monitoring.SweepConfig{
		RapidInterval:      c.Sweeps.RapidInterval,
		DuplicateInterval:  c.Sweeps.DuplicateInterval,
		FailedInterval:     c.Sweeps.FailedInterval,
		BehavioralInterval: c.Sweeps.BehavioralInterval,
		PruneInterval:      c.Sweeps.PruneInterval,
		Timeout:            c.Sweeps.Timeout,
		BaselineMaxIdle:    c.Sweeps.BaselineMaxIdle,
	}
	return mon
}
