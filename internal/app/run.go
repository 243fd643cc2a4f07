package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/engine"
	"github.com/vk/buildgrid/internal/label"
)

// Run executes one build request for the configured roots and prints the
// per-target outcome. The summary is returned alongside any request-fatal
// error; a build with failed targets is not itself an error here, the
// caller classifies the summary.
func (a *App) Run(ctx context.Context) (*engine.Summary, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	roots, err := a.resolveRoots()
	if err != nil {
		return nil, err
	}

	a.logger.Info("Starting build.", "roots", len(roots), "snapshot", a.snap.Version())
	summary, err := a.engine.Build(ctx, a.snap, roots)
	if summary != nil {
		a.printSummary(summary)
	}
	if err != nil {
		return summary, err
	}

	if a.config.SnapshotPath != "" {
		if err := a.store.Save(ctx, a.config.SnapshotPath, a.snap); err != nil {
			// The build outcome stands; losing the snapshot only costs the
			// next cold start.
			a.logger.Warn("Saving snapshot failed.", "url", a.config.SnapshotPath, "error", err)
		}
	}

	a.logger.Info("Build finished.", "ok", summary.OK(), "cache_failures", summary.CacheFailures)
	return summary, nil
}

// resolveRoots parses the configured root targets. Cell-relative
// (`//pkg:name`) and package-relative (`:name`, root package) forms are
// resolved against the configured cell.
func (a *App) resolveRoots() ([]label.Label, error) {
	roots := make([]label.Label, 0, len(a.config.Roots))
	for _, raw := range a.config.Roots {
		var (
			l   label.Label
			err error
		)
		switch {
		case strings.HasPrefix(raw, "//"):
			l, err = label.Parse(a.config.Cell + raw)
		case strings.HasPrefix(raw, ":"):
			l, err = label.New(a.config.Cell, "", raw[1:])
		default:
			l, err = label.Parse(raw)
		}
		if err != nil {
			return nil, fmt.Errorf("root target %q: %w", raw, err)
		}
		roots = append(roots, l)
	}
	return roots, nil
}

func (a *App) printSummary(summary *engine.Summary) {
	for _, res := range summary.Sorted() {
		if res.Err != nil {
			fmt.Fprintf(a.outW, "%-14s %s (%v)\n", res.State, res.Target, res.Err)
			continue
		}
		fmt.Fprintf(a.outW, "%-14s %s\n", res.State, res.Target)
	}

	counts := summary.Counts()
	var parts []string
	for _, state := range []engine.State{
		engine.StateSucceeded, engine.StateCacheHit, engine.StateFailed,
		engine.StateSkippedFailed, engine.StateCancelled,
	} {
		if n := counts[state]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, state))
		}
	}
	fmt.Fprintf(a.outW, "targets: %s\n", strings.Join(parts, ", "))
}
