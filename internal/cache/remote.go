package cache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/buildgrid/internal/fingerprint"
	"resty.dev/v3"
)

// Remote is a cache tier speaking HTTP to an artifact cache service:
// GET /artifacts/{fingerprint} returns the artifact bytes or 404,
// PUT /artifacts/{fingerprint} stores them. The transport is treated as
// unreliable; every failure surfaces as an error the engine degrades to a
// miss.
type Remote struct {
	client  *resty.Client
	baseURL string
}

// NewRemote creates a remote cache client for the given endpoint,
// e.g. "http://cache.internal:8080".
func NewRemote(baseURL string) *Remote {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	return &Remote{client: client, baseURL: baseURL}
}

// Close releases the underlying HTTP client resources.
func (c *Remote) Close() error {
	return c.client.Close()
}

// Get implements Cache.
func (c *Remote) Get(ctx context.Context, fp fingerprint.Fingerprint) (Artifact, bool, error) {
	res, err := c.client.R().
		SetContext(ctx).
		Get("/artifacts/" + fp.Hex())
	if err != nil {
		return Artifact{}, false, fmt.Errorf("remote cache get %s: %w", fp.Hex(), err)
	}
	switch {
	case res.StatusCode() == http.StatusNotFound:
		return Artifact{}, false, nil
	case res.IsSuccess():
		return Artifact{Content: res.Bytes(), CreatedAt: time.Now()}, true, nil
	default:
		return Artifact{}, false, fmt.Errorf("remote cache get %s: unexpected status %d", fp.Hex(), res.StatusCode())
	}
}

// Put implements Cache.
func (c *Remote) Put(ctx context.Context, fp fingerprint.Fingerprint, a Artifact) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(a.Content).
		Put("/artifacts/" + fp.Hex())
	if err != nil {
		return fmt.Errorf("remote cache put %s: %w", fp.Hex(), err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("remote cache put %s: unexpected status %d", fp.Hex(), res.StatusCode())
	}
	return nil
}
