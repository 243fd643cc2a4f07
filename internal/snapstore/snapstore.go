// Package snapstore persists graph snapshots as YAML documents in abstract
// file storage, giving the daemonless CLI a last-known-good graph between
// runs. A stored document is an ordered target list; loading replays it as
// one delta onto the empty snapshot, which rebuilds every index and
// re-validates integrity on the way in.
package snapstore

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/viant/afs"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/graph"
	"github.com/vk/buildgrid/internal/label"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"
)

// StoreError reports a failed snapshot persistence operation.
type StoreError struct {
	Op  string // "save" or "load"
	URL string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// metaValue serializes one cty metadata attribute: its type and value in
// their JSON encodings, which round-trip all cty value shapes.
type metaValue struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// record is one target in a stored document.
type record struct {
	Label    string               `yaml:"label"`
	Deps     []string             `yaml:"deps,omitempty"`
	Metadata map[string]metaValue `yaml:"metadata,omitempty"`
}

// document is the stored form of a snapshot.
type document struct {
	Version uint64   `yaml:"version"`
	Targets []record `yaml:"targets"`
}

// Store reads and writes snapshots at afs URLs, so file:// and mem://
// locations both work.
type Store struct {
	fs afs.Service
}

// New creates a snapshot store.
func New() *Store {
	return &Store{fs: afs.New()}
}

// Save writes the snapshot to the given URL, replacing any prior document.
// Targets are stored in canonical label order.
func (s *Store) Save(ctx context.Context, location string, snap *graph.Snapshot) error {
	doc := document{Version: snap.Version()}
	for _, l := range snap.Labels() {
		node, err := snap.Node(l)
		if err != nil {
			return &StoreError{Op: "save", URL: location, Err: err}
		}
		rec, err := encodeNode(node)
		if err != nil {
			return &StoreError{Op: "save", URL: location, Err: err}
		}
		doc.Targets = append(doc.Targets, rec)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return &StoreError{Op: "save", URL: location, Err: err}
	}
	if err := s.fs.Upload(ctx, location, os.FileMode(0o644), bytes.NewReader(data)); err != nil {
		return &StoreError{Op: "save", URL: location, Err: err}
	}
	ctxlog.FromContext(ctx).Info("Snapshot saved.",
		"url", location, "version", snap.Version(), "targets", len(doc.Targets))
	return nil
}

// Load reads a stored document and replays it onto the empty snapshot. The
// result is a fresh version-1 snapshot with all indices rebuilt; referential
// integrity and acyclicity are re-checked by the replay itself.
func (s *Store) Load(ctx context.Context, location string) (*graph.Snapshot, error) {
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, &StoreError{Op: "load", URL: location, Err: err}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &StoreError{Op: "load", URL: location, Err: err}
	}

	delta := graph.Delta{Added: make([]graph.Decl, 0, len(doc.Targets))}
	for _, rec := range doc.Targets {
		decl, err := decodeRecord(rec)
		if err != nil {
			return nil, &StoreError{Op: "load", URL: location, Err: err}
		}
		delta.Added = append(delta.Added, decl)
	}

	snap, err := graph.Apply(graph.Empty(), delta)
	if err != nil {
		return nil, &StoreError{Op: "load", URL: location, Err: err}
	}
	ctxlog.FromContext(ctx).Info("Snapshot loaded.",
		"url", location, "stored_version", doc.Version, "targets", snap.Len())
	return snap, nil
}

// Exists reports whether a document is present at the URL.
func (s *Store) Exists(ctx context.Context, location string) (bool, error) {
	ok, err := s.fs.Exists(ctx, location)
	if err != nil {
		return false, &StoreError{Op: "load", URL: location, Err: err}
	}
	return ok, nil
}

func encodeNode(node *graph.Node) (record, error) {
	rec := record{Label: node.Label().String()}
	for _, d := range node.Deps() {
		rec.Deps = append(rec.Deps, d.String())
	}
	metadata := node.Metadata()
	if len(metadata) > 0 {
		rec.Metadata = make(map[string]metaValue, len(metadata))
	}
	for k, v := range metadata {
		ty, err := ctyjson.MarshalType(v.Type())
		if err != nil {
			return record{}, fmt.Errorf("target %s metadata %q: %w", node.Label(), k, err)
		}
		val, err := ctyjson.Marshal(v, v.Type())
		if err != nil {
			return record{}, fmt.Errorf("target %s metadata %q: %w", node.Label(), k, err)
		}
		rec.Metadata[k] = metaValue{Type: string(ty), Value: string(val)}
	}
	return rec, nil
}

func decodeRecord(rec record) (graph.Decl, error) {
	target, err := label.Parse(rec.Label)
	if err != nil {
		return graph.Decl{}, err
	}

	deps := make([]label.Label, 0, len(rec.Deps))
	for _, raw := range rec.Deps {
		dep, err := label.Parse(raw)
		if err != nil {
			return graph.Decl{}, fmt.Errorf("target %s: %w", target, err)
		}
		deps = append(deps, dep)
	}

	var metadata graph.Metadata
	if len(rec.Metadata) > 0 {
		metadata = make(graph.Metadata, len(rec.Metadata))
	}
	for k, mv := range rec.Metadata {
		ty, err := ctyjson.UnmarshalType([]byte(mv.Type))
		if err != nil {
			return graph.Decl{}, fmt.Errorf("target %s metadata %q: %w", target, k, err)
		}
		value, err := ctyjson.Unmarshal([]byte(mv.Value), ty)
		if err != nil {
			return graph.Decl{}, fmt.Errorf("target %s metadata %q: %w", target, k, err)
		}
		metadata[k] = value
	}

	return graph.Decl{Label: target, Deps: deps, Metadata: metadata}, nil
}
