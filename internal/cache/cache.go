// Package cache provides the artifact cache consumed by the build engine,
// keyed by target fingerprint. Tiers may be in-memory, filesystem-backed
// (through afs, so file:// and mem:// both work), or remote over HTTP, and
// can be stacked with Tiered. Backend errors are returned to the caller,
// which treats them as misses for correctness and logs them for visibility.
package cache

import (
	"context"
	"time"

	"github.com/vk/buildgrid/internal/fingerprint"
)

// Artifact is the opaque product of building one target. The engine and
// cache never interpret the content.
type Artifact struct {
	Content   []byte
	CreatedAt time.Time
}

// Cache stores and retrieves artifacts by fingerprint. Implementations must
// be safe for concurrent use. Races on the same key resolve to last writer
// wins; a concurrent reader may observe either a miss or a valid prior
// entry, never a torn one.
type Cache interface {
	// Get returns the artifact for the fingerprint, and whether it was
	// found. A non-nil error means the backend failed, not that the entry
	// is absent.
	Get(ctx context.Context, fp fingerprint.Fingerprint) (Artifact, bool, error)

	// Put stores the artifact under the fingerprint, replacing any
	// existing entry atomically.
	Put(ctx context.Context, fp fingerprint.Fingerprint, a Artifact) error
}
