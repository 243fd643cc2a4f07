package cache

import (
	"context"
	"errors"

	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/fingerprint"
)

// Tiered stacks cache tiers fastest-first. Gets probe tiers in order and
// backfill every faster tier on a hit. Puts write through to all tiers.
// A failing tier is logged and skipped, never fatal: the stack degrades to
// whatever tiers still answer.
type Tiered struct {
	tiers []Cache
}

// NewTiered composes the given tiers, ordered fastest-first.
func NewTiered(tiers ...Cache) *Tiered {
	return &Tiered{tiers: tiers}
}

// Get implements Cache.
func (t *Tiered) Get(ctx context.Context, fp fingerprint.Fingerprint) (Artifact, bool, error) {
	logger := ctxlog.FromContext(ctx)
	var errs []error
	for i, tier := range t.tiers {
		a, ok, err := tier.Get(ctx, fp)
		if err != nil {
			logger.Warn("Cache tier get failed, trying next tier.", "tier", i, "fingerprint", fp.Hex(), "error", err)
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		// Backfill the faster tiers so the next probe stops earlier.
		for j := 0; j < i; j++ {
			if err := t.tiers[j].Put(ctx, fp, a); err != nil {
				logger.Warn("Cache tier backfill failed.", "tier", j, "fingerprint", fp.Hex(), "error", err)
			}
		}
		return a, true, nil
	}
	if len(errs) == len(t.tiers) && len(errs) > 0 {
		// Every tier failed; report it so the engine can record the outage.
		return Artifact{}, false, errors.Join(errs...)
	}
	return Artifact{}, false, nil
}

// Put implements Cache. The artifact lands in every tier that accepts it;
// an error is returned only when no tier stored it.
func (t *Tiered) Put(ctx context.Context, fp fingerprint.Fingerprint, a Artifact) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error
	stored := 0
	for i, tier := range t.tiers {
		if err := tier.Put(ctx, fp, a); err != nil {
			logger.Warn("Cache tier put failed.", "tier", i, "fingerprint", fp.Hex(), "error", err)
			errs = append(errs, err)
			continue
		}
		stored++
	}
	if stored == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
