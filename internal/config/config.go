// Package config defines the static configuration a replica process
// is started with, grounded on the teacher's pkg/config package:
// mapstructure/yaml-tagged fields loaded through viper (flags > env >
// file > defaults) and checked with go-playground/validator.
//
// Unlike the teacher, there is no dynamic control-plane configuration
// (users, shares, adapters) — spec.md §6 says the replica set is
// static for the process lifetime, so everything here is loaded once
// at startup and never mutated.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the full static configuration for one replica process.
type Config struct {
	// ReplicaID is this process's identity in Replicas (index into it).
	ReplicaID uint64 `mapstructure:"replica_id" yaml:"replica_id" validate:"gte=0"`

	// Replicas is the deployment's address table, indexed by replica id.
	// Must have an odd length >= 1 per spec.md §2.
	Replicas []string `mapstructure:"replicas" yaml:"replicas" validate:"required,min=1"`

	// TickInterval is the cadence at which the external timer source
	// should invoke OnTimer. Recommended a few hundred milliseconds
	// (spec.md §6).
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" validate:"required,gt=0"`

	// ViewChangeIdleTicks is how many consecutive idle ticks a backup
	// tolerates before initiating a view change (spec.md §4.6: minimum
	// 1, recommended >= 2). Expressed in ticks, not wall-clock time, so
	// it stays meaningful independent of TickInterval.
	ViewChangeIdleTicks int `mapstructure:"view_change_idle_ticks" yaml:"view_change_idle_ticks" validate:"gte=1"`

	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	StatusAPI StatusAPIConfig `mapstructure:"status_api" yaml:"status_api"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

type StatusAPIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// Default returns a Config with the reference-design defaults applied
// (spec.md §6, §4.6): a few-hundred-millisecond tick and a 4-tick
// view-change threshold.
func Default() Config {
	return Config{
		TickInterval:        200 * time.Millisecond,
		ViewChangeIdleTicks: 4,
		Logging:             LoggingConfig{Level: "info", Format: "text"},
		Metrics:             MetricsConfig{Enabled: true, Addr: ":9090"},
		Telemetry:           TelemetryConfig{Enabled: false, SampleRate: 1.0},
		StatusAPI:           StatusAPIConfig{Enabled: true, Addr: ":8080"},
	}
}

var validate = validator.New()

// Load reads configuration from path (if non-empty), environment
// variables prefixed VRD_, and flags already bound to v, layering over
// Default(), then validates the result.
func Load(v *viper.Viper, path string) (Config, error) {
	cfg := Default()

	v.SetEnvPrefix("VRD")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}
	if len(cfg.Replicas)%2 == 0 {
		return Config{}, fmt.Errorf("config: replica count %d must be odd", len(cfg.Replicas))
	}
	if cfg.ReplicaID >= uint64(len(cfg.Replicas)) {
		return Config{}, fmt.Errorf("config: replica_id %d out of range [0, %d)", cfg.ReplicaID, len(cfg.Replicas))
	}

	return cfg, nil
}
