package cache

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/vk/buildgrid/internal/fingerprint"
)

// AFS is a cache tier backed by abstract file storage: one object per
// fingerprint under a base URL. Any scheme afs understands works, so
// production uses file:// while tests run against mem://.
type AFS struct {
	fs      afs.Service
	baseURL string
}

// NewAFS creates a cache rooted at baseURL, e.g. "file:///var/cache/buildgrid"
// or "mem://localhost/cache".
func NewAFS(baseURL string) *AFS {
	return &AFS{fs: afs.New(), baseURL: baseURL}
}

func (c *AFS) objectURL(fp fingerprint.Fingerprint) string {
	return url.Join(c.baseURL, fp.Hex())
}

// Get implements Cache. A missing object is a miss; any storage error is
// reported so the engine can degrade it to a miss and log it.
func (c *AFS) Get(ctx context.Context, fp fingerprint.Fingerprint) (Artifact, bool, error) {
	location := c.objectURL(fp)
	exists, err := c.fs.Exists(ctx, location)
	if err != nil {
		return Artifact{}, false, fmt.Errorf("probing cache object %s: %w", location, err)
	}
	if !exists {
		return Artifact{}, false, nil
	}

	object, err := c.fs.Object(ctx, location)
	if err != nil {
		return Artifact{}, false, fmt.Errorf("reading cache object attributes %s: %w", location, err)
	}
	content, err := c.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return Artifact{}, false, fmt.Errorf("downloading cache object %s: %w", location, err)
	}
	return Artifact{Content: content, CreatedAt: object.ModTime()}, true, nil
}

// Put implements Cache. Uploads replace whole objects, so concurrent
// writers resolve to last writer wins with no torn entries.
func (c *AFS) Put(ctx context.Context, fp fingerprint.Fingerprint, a Artifact) error {
	location := c.objectURL(fp)
	if err := c.fs.Upload(ctx, location, os.FileMode(0o644), bytes.NewReader(a.Content)); err != nil {
		return fmt.Errorf("uploading cache object %s: %w", location, err)
	}
	return nil
}
