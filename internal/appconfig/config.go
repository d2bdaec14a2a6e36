// Package appconfig loads and persists the scheduler's runtime
// configuration: monitored stations, decoded products, and the pool
// sizes that govern discovery and fetch concurrency.
package appconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// AllStations is the sentinel value for monitored_stations that
// requests auto-discovery of every station subdirectory for the day.
const AllStations = "ALL"

const (
	defaultScanIntervalSeconds    = 30
	defaultMaxFramesPerStation    = 30
	defaultCleanupIntervalSeconds = 300
	defaultFetcherThreadPoolSize  = 8
	defaultDiscoveryParallelism   = 10
	defaultBufferPoolSize         = 64
	defaultBufferSizeBytes        = 120 * 1024 * 1024
)

// Config is the scheduler's tunable surface (spec §6 configuration
// table). Fields are loaded from JSON with omitted keys retaining
// their defaults, so partial configs are safe to apply.
type Config struct {
	MonitoredStations    []string `json:"monitored_stations"`
	Products             []string `json:"products"`
	ScanIntervalSeconds   int      `json:"scan_interval_seconds"`
	MaxFramesPerStation   int      `json:"max_frames_per_station"`
	CleanupIntervalSeconds int     `json:"cleanup_interval_seconds"`
	AutoCleanupEnabled    bool     `json:"auto_cleanup_enabled"`
	CatchupEnabled        bool     `json:"catchup_enabled"`
	FetcherThreadPoolSize int      `json:"fetcher_thread_pool_size"`
	DiscoveryParallelism  int      `json:"discovery_parallelism"`
	BufferPoolSize        int      `json:"buffer_pool_size"`
	BufferSizeBytes       int      `json:"buffer_size_bytes"`
}

// Default returns the configuration surface's documented defaults.
func Default() *Config {
	return &Config{
		MonitoredStations:      []string{"KTLX", "KCRP", "KEWX"},
		Products:               []string{"reflectivity", "velocity", "correlation_coefficient"},
		ScanIntervalSeconds:    defaultScanIntervalSeconds,
		MaxFramesPerStation:    defaultMaxFramesPerStation,
		CleanupIntervalSeconds: defaultCleanupIntervalSeconds,
		AutoCleanupEnabled:     true,
		CatchupEnabled:         true,
		FetcherThreadPoolSize:  defaultFetcherThreadPoolSize,
		DiscoveryParallelism:   defaultDiscoveryParallelism,
		BufferPoolSize:         defaultBufferPoolSize,
		BufferSizeBytes:        defaultBufferSizeBytes,
	}
}

// Load reads a Config from a JSON file at path, starting from Default()
// so that omitted keys keep their documented defaults, then applies any
// recognized environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	if data, err := os.ReadFile(cleanPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("appconfig: parse %s: %w", cleanPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("appconfig: read %s: %w", cleanPath, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("appconfig: invalid config: %w", err)
	}
	return cfg, nil
}

// Save persists cfg as JSON to path, creating parent directories as
// needed. Called on every config mutation (spec §4.6 state persistence).
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("appconfig: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("appconfig: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("appconfig: write %s: %w", path, err)
	}
	return nil
}

// envOverride reads an int from the environment, leaving dst unchanged
// if the variable is unset or unparseable.
func envOverride(name string, dst *int) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	if v, err := strconv.Atoi(raw); err == nil {
		*dst = v
	}
}

// applyEnvOverrides reads discovery parallelism, thread count, buffer
// count, and buffer size from well-known environment variables
// (spec §6): these override the stored config. No command-line flag
// in this repository overrides them in turn.
func applyEnvOverrides(cfg *Config) {
	envOverride("LEVELII_DISCOVERY_PARALLELISM", &cfg.DiscoveryParallelism)
	envOverride("LEVELII_FETCHER_THREADS", &cfg.FetcherThreadPoolSize)
	envOverride("LEVELII_BUFFER_POOL_SIZE", &cfg.BufferPoolSize)
	envOverride("LEVELII_BUFFER_SIZE", &cfg.BufferSizeBytes)
}

// Validate rejects configurations that would make the scheduler
// non-functional.
func (c *Config) Validate() error {
	if len(c.MonitoredStations) == 0 {
		return fmt.Errorf("monitored_stations must not be empty")
	}
	if len(c.Products) == 0 {
		return fmt.Errorf("products must not be empty")
	}
	if c.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("scan_interval_seconds must be positive, got %d", c.ScanIntervalSeconds)
	}
	if c.MaxFramesPerStation <= 0 {
		return fmt.Errorf("max_frames_per_station must be positive, got %d", c.MaxFramesPerStation)
	}
	if c.CleanupIntervalSeconds <= 0 {
		return fmt.Errorf("cleanup_interval_seconds must be positive, got %d", c.CleanupIntervalSeconds)
	}
	if c.FetcherThreadPoolSize <= 0 {
		return fmt.Errorf("fetcher_thread_pool_size must be positive, got %d", c.FetcherThreadPoolSize)
	}
	if c.DiscoveryParallelism <= 0 {
		return fmt.Errorf("discovery_parallelism must be positive, got %d", c.DiscoveryParallelism)
	}
	if c.BufferPoolSize <= 0 {
		return fmt.Errorf("buffer_pool_size must be positive, got %d", c.BufferPoolSize)
	}
	if c.BufferSizeBytes <= 0 {
		return fmt.Errorf("buffer_size_bytes must be positive, got %d", c.BufferSizeBytes)
	}
	return nil
}

// PoolDimensionsEqual reports whether the pool-affecting fields are
// unchanged between c and other, used by the scheduler to decide
// whether pools must be rebuilt on reconfiguration (spec §4.6).
func (c *Config) PoolDimensionsEqual(other *Config) bool {
	return c.FetcherThreadPoolSize == other.FetcherThreadPoolSize &&
		c.DiscoveryParallelism == other.DiscoveryParallelism &&
		c.BufferPoolSize == other.BufferPoolSize &&
		c.BufferSizeBytes == other.BufferSizeBytes
}
