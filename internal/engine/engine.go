package engine

import (
	"fmt"
	"sync"

	"github.com/vk/buildgrid/internal/cache"
	"github.com/vk/buildgrid/internal/executor"
	"github.com/vk/buildgrid/internal/graph"
	"github.com/vk/buildgrid/internal/label"
	"github.com/vk/buildgrid/internal/sched"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Options configures an Engine.
type Options struct {
	// Workers is the size of the build worker pool.
	Workers int
	// Capacity is the total resource capacity admitted targets draw from.
	Capacity sched.Weight
	// DefaultWeight applies to targets that declare no cpu/memory
	// attributes.
	DefaultWeight sched.Weight
	// FailFast stops admitting new targets after the first failure,
	// letting already-running work drain.
	FailFast bool
	// Retries is the number of additional executor attempts allowed when
	// a failure explicitly wraps executor.ErrTransient.
	Retries int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 10
	}
	if o.Capacity == (sched.Weight{}) {
		o.Capacity = sched.Weight{CPU: o.Workers, Memory: 1 << 20}
	}
	if o.DefaultWeight == (sched.Weight{}) {
		o.DefaultWeight = sched.Weight{CPU: 1}
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	return o
}

// Engine coordinates cache probes, admission and execution over snapshots.
// One engine serves any number of sequential or concurrent build requests;
// the flight table guarantees at most one attempt per (snapshot, target).
type Engine struct {
	cache cache.Cache
	exec  executor.Executor
	sched *sched.Scheduler
	opts  Options

	mu      sync.Mutex
	flights map[flightKey]*flight
}

// New creates an engine building through the given cache and executor.
func New(artifacts cache.Cache, exec executor.Executor, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		cache:   artifacts,
		exec:    exec,
		sched:   sched.New(opts.Capacity),
		opts:    opts,
		flights: make(map[flightKey]*flight),
	}
}

// flightKey scopes one build attempt: results never leak across snapshots.
type flightKey struct {
	version uint64
	target  label.Label
}

// flight is the single in-flight-or-completed attempt for a flightKey.
// done is closed once result is set.
type flight struct {
	done   chan struct{}
	result Result
}

// startFlight returns the flight for the key and whether the caller created
// it and therefore owns running the attempt.
func (e *Engine) startFlight(key flightKey) (*flight, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.flights[key]; ok {
		return f, false
	}
	f := &flight{done: make(chan struct{})}
	e.flights[key] = f
	return f, true
}

// abandonFlight removes an owned flight that will never publish, so a later
// request can attempt the target again. Used only for cancellation, which
// is not a terminal outcome other requests should inherit.
func (e *Engine) abandonFlight(key flightKey, f *flight) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flights[key] == f {
		delete(e.flights, key)
	}
}

// weightFor reads a target's declared resource weight from its rule
// metadata, falling back to the engine default.
func (e *Engine) weightFor(node *graph.Node) (sched.Weight, error) {
	w := e.opts.DefaultWeight
	if v := node.Attr("cpu"); v != cty.NilVal {
		if err := gocty.FromCtyValue(v, &w.CPU); err != nil {
			return w, fmt.Errorf("target %s: invalid cpu attribute: %w", node.Label(), err)
		}
	}
	if v := node.Attr("memory"); v != cty.NilVal {
		if err := gocty.FromCtyValue(v, &w.Memory); err != nil {
			return w, fmt.Errorf("target %s: invalid memory attribute: %w", node.Label(), err)
		}
	}
	return w, nil
}
