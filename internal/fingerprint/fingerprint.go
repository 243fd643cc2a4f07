// Package fingerprint computes content fingerprints for build targets. A
// target's fingerprint combines its own declared inputs (label and rule
// metadata) with the fingerprints of its direct dependencies in declaration
// order, so any change anywhere in a target's transitive closure changes the
// target's fingerprint, and reordering dependencies changes it too.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/vk/buildgrid/internal/graph"
	"github.com/vk/buildgrid/internal/label"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Fingerprint is an opaque, comparable summary of a target's transitive
// inputs. Identical fingerprints mean interchangeable artifacts for caching.
type Fingerprint [32]byte

// Hex returns the lowercase hex encoding, used as the cache object key.
func (f Fingerprint) Hex() string { return hex.EncodeToString(f[:]) }

// hashKey is the fixed highwayhash key. It must never change: fingerprints
// are durable cache keys shared across processes.
var hashKey = [32]byte{
	0x62, 0x75, 0x69, 0x6c, 0x64, 0x67, 0x72, 0x69,
	0x64, 0x2e, 0x66, 0x69, 0x6e, 0x67, 0x65, 0x72,
	0x70, 0x72, 0x69, 0x6e, 0x74, 0x2e, 0x76, 0x31,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Engine computes fingerprints against a single captured snapshot.
// Computations are memoized per target, so shared subgraphs are hashed once
// per snapshot no matter how many roots are queried. Safe for concurrent use.
type Engine struct {
	snap *graph.Snapshot

	mu   sync.Mutex
	memo map[label.Label]Fingerprint
}

// New returns an engine bound to the given snapshot.
func New(snap *graph.Snapshot) *Engine {
	return &Engine{
		snap: snap,
		memo: make(map[label.Label]Fingerprint),
	}
}

// Fingerprint returns the target's fingerprint, computing any missing
// dependency fingerprints bottom-up in the snapshot's topological order.
func (e *Engine) Fingerprint(l label.Label) (Fingerprint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if fp, ok := e.memo[l]; ok {
		return fp, nil
	}

	// Deps returns the transitive closure with every dependency ahead of
	// its dependents, so a single forward pass has all inputs available.
	order, err := e.snap.Deps(l, true)
	if err != nil {
		return Fingerprint{}, err
	}
	order = append(order, l)

	for _, target := range order {
		if _, ok := e.memo[target]; ok {
			continue
		}
		fp, err := e.combine(target)
		if err != nil {
			return Fingerprint{}, err
		}
		e.memo[target] = fp
	}
	return e.memo[l], nil
}

// combine hashes one node's own inputs plus its direct dependencies'
// already-memoized fingerprints. Every field is written as a
// length-prefixed frame so adjacent fields can never alias.
func (e *Engine) combine(l label.Label) (Fingerprint, error) {
	node, err := e.snap.Node(l)
	if err != nil {
		return Fingerprint{}, err
	}

	h, err := highwayhash.New(hashKey[:])
	if err != nil {
		return Fingerprint{}, fmt.Errorf("initializing fingerprint hash: %w", err)
	}

	writeFrame(h, []byte(l.String()))

	md := node.Metadata()
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeFrame(h, []byte(k))
		encoded, err := ctyjson.Marshal(md[k], md[k].Type())
		if err != nil {
			return Fingerprint{}, fmt.Errorf("encoding metadata %q of %s: %w", k, l, err)
		}
		writeFrame(h, encoded)
	}

	// Dependency order is part of the combination: reordered-but-equal
	// dependency sets are semantically distinct declarations.
	for _, d := range node.Deps() {
		depFP, ok := e.memo[d]
		if !ok {
			return Fingerprint{}, fmt.Errorf("fingerprint for dependency %s of %s not yet computed", d, l)
		}
		writeFrame(h, depFP[:])
	}

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, nil
}

func writeFrame(h hash.Hash, payload []byte) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(payload)))
	h.Write(size[:])
	h.Write(payload)
}
