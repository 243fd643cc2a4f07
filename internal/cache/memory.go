package cache

import (
	"context"
	"sync"

	"github.com/vk/buildgrid/internal/fingerprint"
)

// Memory is an ephemeral in-process cache tier. It uses sync.Map because
// the key space grows monotonically while reads and writes from worker
// goroutines interleave on independent keys.
type Memory struct {
	entries sync.Map // Key: fingerprint.Fingerprint, Value: Artifact
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{}
}

// Get implements Cache. It never fails.
func (m *Memory) Get(_ context.Context, fp fingerprint.Fingerprint) (Artifact, bool, error) {
	v, ok := m.entries.Load(fp)
	if !ok {
		return Artifact{}, false, nil
	}
	return v.(Artifact), true, nil
}

// Put implements Cache. Last writer wins.
func (m *Memory) Put(_ context.Context, fp fingerprint.Fingerprint, a Artifact) error {
	m.entries.Store(fp, a)
	return nil
}
