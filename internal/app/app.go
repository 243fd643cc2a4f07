package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/buildgrid/internal/cache"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/engine"
	"github.com/vk/buildgrid/internal/executor"
	"github.com/vk/buildgrid/internal/graph"
	"github.com/vk/buildgrid/internal/label"
	"github.com/vk/buildgrid/internal/rulesrc"
	"github.com/vk/buildgrid/internal/sched"
	"github.com/vk/buildgrid/internal/snapstore"
	"github.com/zclconf/go-cty/cty"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle: one loaded graph snapshot and one engine ready to serve build
// requests against it.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	snap   *graph.Snapshot
	engine *engine.Engine
	store  *snapstore.Store
}

// New constructs a fully initialized App: logger, graph snapshot (from the
// snapshot store, the rule tree, or both), cache tiers, and engine.
func New(ctx context.Context, outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	store := snapstore.New()
	snap, err := loadGraph(ctx, cfg, store)
	if err != nil {
		return nil, err
	}
	logger.Info("Dependency graph ready.", "version", snap.Version(), "targets", snap.Len())

	artifacts := buildCache(cfg)
	exec := executor.NewLocal(commandSource(snap))

	capacity := sched.Weight{CPU: cfg.CPUCapacity, Memory: cfg.MemoryCapacity}
	if capacity.CPU == 0 {
		capacity.CPU = cfg.Workers
	}
	if capacity.Memory == 0 {
		// Memory admission is opt-in; leave it effectively unbounded.
		capacity.Memory = 1 << 30
	}

	eng := engine.New(artifacts, exec, engine.Options{
		Workers:  cfg.Workers,
		Capacity: capacity,
		FailFast: cfg.FailFast,
		Retries:  cfg.Retries,
	})

	return &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		snap:   snap,
		engine: eng,
		store:  store,
	}, nil
}

// Snapshot returns the loaded graph snapshot. Primarily for testing.
func (a *App) Snapshot() *graph.Snapshot { return a.snap }

// loadGraph assembles the current snapshot: a saved snapshot when present,
// with the rule tree replayed on top as an incremental delta, or the rule
// tree alone onto the empty snapshot.
func loadGraph(ctx context.Context, cfg *Config, store *snapstore.Store) (*graph.Snapshot, error) {
	logger := ctxlog.FromContext(ctx)

	var snap *graph.Snapshot
	if cfg.SnapshotPath != "" {
		exists, err := store.Exists(ctx, cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		if exists {
			snap, err = store.Load(ctx, cfg.SnapshotPath)
			if err != nil {
				return nil, err
			}
		} else {
			logger.Debug("No saved snapshot found.", "url", cfg.SnapshotPath)
		}
	}

	if cfg.RulesPath != "" {
		loader := rulesrc.NewLoader(cfg.Cell, cfg.RulesPath)
		if snap == nil {
			delta, err := loader.Load(ctx)
			if err != nil {
				return nil, err
			}
			return graph.Apply(graph.Empty(), delta)
		}

		delta, err := loader.Diff(ctx, snap)
		if err != nil {
			return nil, err
		}
		if delta.IsEmpty() {
			logger.Debug("Rule tree matches saved snapshot.")
			return snap, nil
		}
		logger.Info("Applying rule tree changes to saved snapshot.",
			"added", len(delta.Added), "removed", len(delta.Removed), "modified", len(delta.Modified))
		return graph.Apply(snap, delta)
	}

	if snap == nil {
		return nil, fmt.Errorf("no saved snapshot at %s and no rules path given", cfg.SnapshotPath)
	}
	return snap, nil
}

// buildCache stacks the configured cache tiers: memory always, persistent
// storage and remote HTTP when configured.
func buildCache(cfg *Config) cache.Cache {
	tiers := []cache.Cache{cache.NewMemory()}
	if cfg.CacheURL != "" {
		tiers = append(tiers, cache.NewAFS(cfg.CacheURL))
	}
	if cfg.RemoteCacheURL != "" {
		tiers = append(tiers, cache.NewRemote(cfg.RemoteCacheURL))
	}
	if len(tiers) == 1 {
		return tiers[0]
	}
	return cache.NewTiered(tiers...)
}

// commandSource resolves a target's "cmd" metadata attribute from the
// snapshot for the local executor.
func commandSource(snap *graph.Snapshot) executor.CommandSource {
	return func(target label.Label) (string, bool) {
		node, err := snap.Node(target)
		if err != nil {
			return "", false
		}
		v := node.Attr("cmd")
		if v == cty.NilVal || v.Type() != cty.String || v.IsNull() {
			return "", false
		}
		return v.AsString(), true
	}
}
