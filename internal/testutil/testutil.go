// Package testutil carries shared fixtures for engine and frontend tests:
// a scripted executor with call accounting and the reference dependency
// graph used across packages.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/buildgrid/internal/cache"
	"github.com/vk/buildgrid/internal/executor"
	"github.com/vk/buildgrid/internal/graph"
	"github.com/vk/buildgrid/internal/label"
)

// Target builds a label in the test cell and package.
func Target(name string) label.Label {
	return label.MustNew("root", "pkg", name)
}

// Decl builds a metadata-free declaration for the test package.
func Decl(name string, deps ...string) graph.Decl {
	ds := make([]label.Label, len(deps))
	for i, d := range deps {
		ds[i] = Target(d)
	}
	return graph.Decl{Label: Target(name), Deps: ds}
}

// SampleDelta declares the reference graph:
// A -> B,C,D,E,H,I; D -> F,H,I; E -> G,H,I; F,G -> H,I; B,C,H,I leaves.
func SampleDelta() graph.Delta {
	return graph.Delta{Added: []graph.Decl{
		Decl("H"),
		Decl("I"),
		Decl("B"),
		Decl("C"),
		Decl("F", "H", "I"),
		Decl("G", "H", "I"),
		Decl("D", "F", "H", "I"),
		Decl("E", "G", "H", "I"),
		Decl("A", "B", "C", "D", "E", "H", "I"),
	}}
}

// SampleSnapshot applies SampleDelta to an empty graph.
func SampleSnapshot(t *testing.T) *graph.Snapshot {
	t.Helper()
	s, err := graph.Apply(graph.Empty(), SampleDelta())
	require.NoError(t, err)
	return s
}

// ScriptedExecutor is a test double for the build executor. By default every
// target succeeds with a deterministic artifact; individual targets can be
// scripted to fail or block. All invocations are counted per target.
type ScriptedExecutor struct {
	// Fail maps targets to the error their execution returns.
	Fail map[label.Label]error
	// Delay is waited before each execution completes, honoring ctx.
	Delay time.Duration
	// OnExecute, when set, is invoked at the start of every execution.
	OnExecute func(req executor.Request)

	mu    sync.Mutex
	calls map[label.Label]int
}

// NewScriptedExecutor returns an executor where every target succeeds.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{
		Fail:  make(map[label.Label]error),
		calls: make(map[label.Label]int),
	}
}

// Execute implements executor.Executor.
func (e *ScriptedExecutor) Execute(ctx context.Context, req executor.Request) (cache.Artifact, error) {
	e.mu.Lock()
	e.calls[req.Target]++
	e.mu.Unlock()

	if e.OnExecute != nil {
		e.OnExecute(req)
	}

	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return cache.Artifact{}, ctx.Err()
		}
	}

	if err := e.Fail[req.Target]; err != nil {
		return cache.Artifact{}, err
	}
	return cache.Artifact{
		Content:   []byte("artifact for " + req.Target.String()),
		CreatedAt: time.Now(),
	}, nil
}

// Calls returns how many times the target was executed.
func (e *ScriptedExecutor) Calls(target label.Label) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[target]
}

// TotalCalls returns the number of executions across all targets.
func (e *ScriptedExecutor) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, n := range e.calls {
		total += n
	}
	return total
}
