// Package config loads corekv's configuration, grounded on the teacher's
// internal/config.go viper.New()+mapstructure pattern.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config mirrors spec.md §6's configuration surface exactly, plus the
// ambient data_dir/log_level fields this expansion adds.
type Config struct {
	PoolSize                 int  `mapstructure:"pool_size"`
	LRUK                     int  `mapstructure:"lru_k"`
	BucketSize               int  `mapstructure:"bucket_size"`
	LeafMax                  int  `mapstructure:"leaf_max"`
	InternalMax              int  `mapstructure:"internal_max"`
	CycleDetectionIntervalMs int  `mapstructure:"cycle_detection_interval_ms"`
	EnableCycleDetection     bool `mapstructure:"enable_cycle_detection"`

	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		PoolSize:                 64,
		LRUK:                     2,
		BucketSize:               4,
		LeafMax:                  5,
		InternalMax:              5,
		CycleDetectionIntervalMs: 50,
		EnableCycleDetection:     true,
		DataDir:                  "./corekv-data",
		LogLevel:                 "info",
	}
}

// Load reads a YAML config file at path via viper, falling back to Default
// for any field the file omits.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("pool_size", cfg.PoolSize)
	v.SetDefault("lru_k", cfg.LRUK)
	v.SetDefault("bucket_size", cfg.BucketSize)
	v.SetDefault("leaf_max", cfg.LeafMax)
	v.SetDefault("internal_max", cfg.InternalMax)
	v.SetDefault("cycle_detection_interval_ms", cfg.CycleDetectionIntervalMs)
	v.SetDefault("enable_cycle_detection", cfg.EnableCycleDetection)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log_level", cfg.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
