package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// RulesPath is the root of the rule tree (*.build.hcl files).
	RulesPath string
	// SnapshotPath is an afs URL holding the last-known-good snapshot.
	// When both paths are set, the snapshot is loaded first and the rule
	// tree is applied as an incremental delta on top.
	SnapshotPath string
	// Cell is the cell name targets are declared into.
	Cell string
	// Roots are the labels of the targets to build.
	Roots []string

	LogFormat string
	LogLevel  string

	Workers        int
	CPUCapacity    int
	MemoryCapacity int
	FailFast       bool
	Retries        int

	// CacheURL is an afs URL for the persistent artifact cache tier;
	// empty disables it.
	CacheURL string
	// RemoteCacheURL is the base URL of a remote HTTP artifact cache;
	// empty disables it.
	RemoteCacheURL string
}

// NewConfig validates a Config and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.RulesPath == "" && cfg.SnapshotPath == "" {
		return nil, errors.New("either a rules path or a snapshot path is required")
	}
	if len(cfg.Roots) == 0 {
		return nil, errors.New("at least one root target is required")
	}

	if cfg.Cell == "" {
		cfg.Cell = "root"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.Retries < 0 {
		return nil, errors.New("retries cannot be negative")
	}
	if cfg.CPUCapacity < 0 || cfg.MemoryCapacity < 0 {
		return nil, errors.New("capacity components cannot be negative")
	}

	return &cfg, nil
}
