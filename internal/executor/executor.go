// Package executor defines the boundary between the build engine and
// whatever actually constructs artifacts. The engine treats executors as
// opaque: it hands over the target, its fingerprint, and the resolved
// artifacts of every direct dependency, and gets back an artifact or a
// failure. Retries happen only when the executor explicitly signals a
// transient failure by wrapping ErrTransient.
package executor

import (
	"context"
	"errors"

	"github.com/vk/buildgrid/internal/cache"
	"github.com/vk/buildgrid/internal/fingerprint"
	"github.com/vk/buildgrid/internal/label"
)

// ErrTransient marks an execution failure as retryable. Executors wrap it
// (fmt.Errorf("...: %w", ErrTransient)) to request a retry; any other error
// is final.
var ErrTransient = errors.New("transient execution failure")

// Request carries everything an executor needs to construct one target.
type Request struct {
	Target      label.Label
	Fingerprint fingerprint.Fingerprint
	// DepArtifacts holds the artifact of every direct dependency, keyed by
	// its label. All of them reached a terminal success state before the
	// request was issued.
	DepArtifacts map[label.Label]cache.Artifact
}

// Executor constructs the artifact for a single target. Implementations may
// run locally or remotely and must honor context cancellation where they
// can; the engine tolerates calls that run to completion instead.
type Executor interface {
	Execute(ctx context.Context, req Request) (cache.Artifact, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, req Request) (cache.Artifact, error)

// Execute implements Executor.
func (f Func) Execute(ctx context.Context, req Request) (cache.Artifact, error) {
	return f(ctx, req)
}
