package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vk/buildgrid/internal/cache"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/executor"
	"github.com/vk/buildgrid/internal/fingerprint"
	"github.com/vk/buildgrid/internal/graph"
	"github.com/vk/buildgrid/internal/label"
	"github.com/vk/buildgrid/internal/sched"
	"golang.org/x/sync/errgroup"
)

// errHaltedAfterFailure marks targets abandoned because fail-fast stopped
// new admissions after an earlier failure.
var errHaltedAfterFailure = errors.New("halted: an earlier target failed and fail-fast is enabled")

// runtimeNode is one target's bookkeeping within a single build request.
type runtimeNode struct {
	node       *graph.Node
	deps       []*runtimeNode
	dependents []*runtimeNode
	// priority is the size of the target's dependent closure within the
	// request; admission favors larger values.
	priority int

	// remaining counts direct dependencies not yet terminally succeeded.
	remaining atomic.Int32
	state     atomic.Int32
	once      sync.Once
	result    Result
}

func (rn *runtimeNode) label() label.Label { return rn.node.Label() }

func (rn *runtimeNode) currentState() State { return State(rn.state.Load()) }

// finish records the terminal result exactly once and reports whether this
// call was the one that terminalized the node.
func (rn *runtimeNode) finish(res Result, wg *sync.WaitGroup) bool {
	first := false
	rn.once.Do(func() {
		rn.result = res
		rn.state.Store(int32(res.State))
		wg.Done()
		first = true
	})
	return first
}

// Build executes one build request: the given roots plus their transitive
// dependency closure over the captured snapshot. It always returns a
// summary with a terminal state per closure member; the error is non-nil
// only for request-fatal conditions (unknown root, impossible resource
// weight).
func (e *Engine) Build(ctx context.Context, snap *graph.Snapshot, roots []label.Label) (*Summary, error) {
	logger := ctxlog.FromContext(ctx)

	nodes, err := e.planClosure(snap, roots)
	if err != nil {
		return nil, err
	}
	logger.Debug("Build request planned.", "snapshot", snap.Version(), "roots", len(roots), "closure", len(nodes))

	fpe := fingerprint.New(snap)
	readyChan := make(chan *runtimeNode, len(nodes))
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(len(nodes))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		failureSeen   atomic.Bool
		cacheFailures atomic.Int64
		fatalMu       sync.Mutex
		fatalErr      error
	)
	fatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
		cancel()
	}

	// Cancellation sweep: once the request context ends, every node that
	// has not reached a terminal state is marked cancelled so the request
	// can drain and report. In-flight executor calls run to completion;
	// their results no longer change this request's summary.
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		<-runCtx.Done()
		for _, rn := range nodes {
			rn.finish(Result{
				Target: rn.label(),
				State:  StateCancelled,
				Err:    context.Cause(runCtx),
			}, &wg)
		}
	}()

	for _, rn := range nodes {
		if rn.remaining.Load() == 0 {
			readyChan <- rn
		}
	}

	var workers errgroup.Group
	for i := 0; i < e.opts.Workers; i++ {
		workers.Go(func() error {
			e.worker(runCtx, workerEnv{
				snap:          snap,
				fpe:           fpe,
				readyChan:     readyChan,
				done:          done,
				wg:            &wg,
				failureSeen:   &failureSeen,
				cacheFailures: &cacheFailures,
				fatal:         fatal,
			})
			return nil
		})
	}

	wg.Wait()
	cancel()
	<-sweepDone
	close(done)
	workers.Wait()

	summary := &Summary{
		SnapshotVersion: snap.Version(),
		Results:         make(map[label.Label]Result, len(nodes)),
		CacheFailures:   int(cacheFailures.Load()),
	}
	for l, rn := range nodes {
		summary.Results[l] = rn.result
	}

	fatalMu.Lock()
	defer fatalMu.Unlock()
	if fatalErr != nil {
		return summary, fatalErr
	}
	return summary, nil
}

// planClosure resolves the request closure and wires per-request runtime
// nodes: direct dep edges, dependent edges, unresolved-dep counters, and
// admission priorities.
func (e *Engine) planClosure(snap *graph.Snapshot, roots []label.Label) (map[label.Label]*runtimeNode, error) {
	closure := make(map[label.Label]*runtimeNode)
	for _, root := range roots {
		n, err := snap.Node(root)
		if err != nil {
			return nil, err
		}
		if _, ok := closure[root]; !ok {
			closure[root] = &runtimeNode{node: n}
		}
		deps, err := snap.Deps(root, true)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if _, ok := closure[d]; ok {
				continue
			}
			dn, err := snap.Node(d)
			if err != nil {
				return nil, err
			}
			closure[d] = &runtimeNode{node: dn}
		}
	}

	for _, rn := range closure {
		for _, d := range rn.node.Deps() {
			dep := closure[d]
			rn.deps = append(rn.deps, dep)
			dep.dependents = append(dep.dependents, rn)
		}
		rn.remaining.Store(int32(rn.node.NumDeps()))
	}

	for _, rn := range closure {
		rn.priority = dependentClosureSize(rn)
	}
	return closure, nil
}

// dependentClosureSize counts the distinct transitive dependents of a node
// within the request closure.
func dependentClosureSize(rn *runtimeNode) int {
	seen := make(map[*runtimeNode]struct{})
	var visit func(n *runtimeNode)
	visit = func(n *runtimeNode) {
		for _, d := range n.dependents {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			visit(d)
		}
	}
	visit(rn)
	return len(seen)
}

// workerEnv is the shared context one worker goroutine operates in.
type workerEnv struct {
	snap          *graph.Snapshot
	fpe           *fingerprint.Engine
	readyChan     chan *runtimeNode
	done          chan struct{}
	wg            *sync.WaitGroup
	failureSeen   *atomic.Bool
	cacheFailures *atomic.Int64
	fatal         func(error)
}

// worker is the processing loop for one pool goroutine: it drains ready
// targets, runs their coalesced attempt, and feeds newly unblocked
// dependents back into the queue. Dependent unlocks and skip propagation
// run only on the call that terminalized the target, so a late result
// (for example from an executor call that outlived a cancellation) never
// double-feeds the queue.
func (e *Engine) worker(ctx context.Context, env workerEnv) {
	logger := ctxlog.FromContext(ctx)

	for {
		var rn *runtimeNode
		select {
		case <-env.done:
			return
		case rn = <-env.readyChan:
		}

		if rn.currentState().Terminal() {
			continue // terminalized while queued (cancellation sweep)
		}
		if ctx.Err() != nil {
			if rn.finish(Result{Target: rn.label(), State: StateCancelled, Err: ctx.Err()}, env.wg) {
				e.cancelDependents(rn, env.wg, ctx.Err())
			}
			continue
		}
		if e.opts.FailFast && env.failureSeen.Load() {
			if rn.finish(Result{Target: rn.label(), State: StateCancelled, Err: errHaltedAfterFailure}, env.wg) {
				e.cancelDependents(rn, env.wg, errHaltedAfterFailure)
			}
			continue
		}

		rn.state.CompareAndSwap(int32(StatePending), int32(StateReady))

		key := flightKey{version: env.snap.Version(), target: rn.label()}
		res := e.runOnce(ctx, key, func() Result {
			return e.attempt(ctx, rn, env)
		})
		res.Target = rn.label()

		switch {
		case res.State.Success():
			if rn.finish(res, env.wg) {
				logger.Debug("Target finished.", "target", rn.label(), "state", res.State.String())
				for _, dependent := range rn.dependents {
					if dependent.remaining.Add(-1) == 0 {
						env.readyChan <- dependent
					}
				}
			}
		case res.State == StateCancelled:
			if rn.finish(res, env.wg) {
				e.cancelDependents(rn, env.wg, res.Err)
			}
		default: // Failed
			if rn.finish(res, env.wg) {
				env.failureSeen.Store(true)
				logger.Error("Target failed.", "target", rn.label(), "error", res.Err)
				e.skipDependents(ctx, rn, env.wg)

				var oversized *sched.OversizedWeightError
				if errors.As(res.Err, &oversized) {
					env.fatal(res.Err)
				}
			}
		}
	}
}

// cancelDependents terminalizes every transitive dependent of a cancelled
// node so the request can drain; without this, targets waiting on the
// cancelled one would never become ready.
func (e *Engine) cancelDependents(rn *runtimeNode, wg *sync.WaitGroup, cause error) {
	for _, dependent := range rn.dependents {
		cancelled := dependent.finish(Result{
			Target: dependent.label(),
			State:  StateCancelled,
			Err:    cause,
		}, wg)
		if cancelled {
			e.cancelDependents(dependent, wg, cause)
		}
	}
}

// skipDependents terminalizes every transitive dependent of a failed node
// as SkippedFailed. Subtrees with no path to the failure are untouched.
func (e *Engine) skipDependents(ctx context.Context, failed *runtimeNode, wg *sync.WaitGroup) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range failed.dependents {
		skipped := dependent.finish(Result{
			Target: dependent.label(),
			State:  StateSkippedFailed,
			Err:    &SkippedError{Target: dependent.label(), Upstream: failed.label()},
		}, wg)
		if skipped {
			logger.Warn("Skipping dependent target due to upstream failure.",
				"target", dependent.label(), "upstream", failed.label())
			e.skipDependents(ctx, dependent, wg)
		}
	}
}

// runOnce executes fn at most once per flight key across all concurrent
// requests. Non-owners wait for the owner's published result. A cancelled
// owner abandons the flight so an uncancelled waiter (or a later request)
// can attempt the target itself.
func (e *Engine) runOnce(ctx context.Context, key flightKey, fn func() Result) Result {
	for {
		f, owner := e.startFlight(key)
		if owner {
			res := fn()
			if res.State == StateCancelled {
				e.abandonFlight(key, f)
			}
			f.result = res
			close(f.done)
			return res
		}

		select {
		case <-f.done:
			if f.result.State == StateCancelled && ctx.Err() == nil {
				continue // the owner's request was cancelled, not ours
			}
			return f.result
		case <-ctx.Done():
			return Result{Target: key.target, State: StateCancelled, Err: ctx.Err()}
		}
	}
}

// attempt drives one target through admission, cache probe and execution.
// Its dependencies are all terminally successful when it runs.
func (e *Engine) attempt(ctx context.Context, rn *runtimeNode, env workerEnv) Result {
	logger := ctxlog.FromContext(ctx).With("target", rn.label().String())

	fp, err := env.fpe.Fingerprint(rn.label())
	if err != nil {
		return Result{State: StateFailed, Err: &ExecutionError{Target: rn.label(), Err: err}}
	}

	weight, err := e.weightFor(rn.node)
	if err != nil {
		return Result{State: StateFailed, Err: err}
	}

	if err := e.sched.Acquire(ctx, rn.label(), weight, rn.priority); err != nil {
		var oversized *sched.OversizedWeightError
		if errors.As(err, &oversized) {
			return Result{State: StateFailed, Err: err}
		}
		return Result{State: StateCancelled, Err: err}
	}
	defer e.sched.Release(weight)
	rn.state.Store(int32(StateAdmitted))

	artifact, hit, err := e.cache.Get(ctx, fp)
	if err != nil {
		// Degraded to a miss for correctness; surfaced for observability.
		logger.Warn("Artifact cache probe failed, treating as miss.", "error", err)
		env.cacheFailures.Add(1)
		hit = false
	}
	if hit {
		logger.Debug("Cache hit.", "fingerprint", fp.Hex())
		return Result{State: StateCacheHit, Fingerprint: fp, Artifact: artifact}
	}

	rn.state.Store(int32(StateRunning))
	req := executor.Request{
		Target:       rn.label(),
		Fingerprint:  fp,
		DepArtifacts: depArtifacts(rn),
	}

	var built cache.Artifact
	for attempt := 0; ; attempt++ {
		built, err = e.exec.Execute(ctx, req)
		if err == nil {
			break
		}
		if errors.Is(err, executor.ErrTransient) && attempt < e.opts.Retries {
			logger.Warn("Executor reported transient failure, retrying.", "attempt", attempt+1, "error", err)
			continue
		}
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return Result{State: StateCancelled, Fingerprint: fp, Err: err}
		}
		return Result{State: StateFailed, Fingerprint: fp, Err: &ExecutionError{Target: rn.label(), Err: err}}
	}

	if err := e.cache.Put(ctx, fp, built); err != nil {
		logger.Warn("Artifact cache store failed.", "fingerprint", fp.Hex(), "error", err)
		env.cacheFailures.Add(1)
	}
	logger.Debug("Target built.", "fingerprint", fp.Hex())
	return Result{State: StateSucceeded, Fingerprint: fp, Artifact: built}
}

// depArtifacts collects the direct dependencies' artifacts for an executor
// request. All dependencies are terminal successes by the time a target is
// attempted.
func depArtifacts(rn *runtimeNode) map[label.Label]cache.Artifact {
	out := make(map[label.Label]cache.Artifact, len(rn.deps))
	for _, dep := range rn.deps {
		out[dep.node.Label()] = dep.result.Artifact
	}
	return out
}
