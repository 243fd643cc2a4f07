// Package sched provides admission control for the build engine: a ready
// target may only start consuming resources when its declared weight fits
// the currently unreserved capacity. Admission among waiting targets favors
// the one unblocking the largest remaining dependent closure, with discovery
// order breaking ties, so the critical path stalls as little as possible.
package sched

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/buildgrid/internal/label"
)

// Weight is the resource vector a target reserves while admitted: CPU slots
// and memory units. Both the per-target declaration and the total capacity
// use the same type.
type Weight struct {
	CPU    int
	Memory int
}

// Add returns the componentwise sum.
func (w Weight) Add(other Weight) Weight {
	return Weight{CPU: w.CPU + other.CPU, Memory: w.Memory + other.Memory}
}

// Sub returns the componentwise difference.
func (w Weight) Sub(other Weight) Weight {
	return Weight{CPU: w.CPU - other.CPU, Memory: w.Memory - other.Memory}
}

// Fits reports whether the weight fits inside the given capacity on every
// component.
func (w Weight) Fits(capacity Weight) bool {
	return w.CPU <= capacity.CPU && w.Memory <= capacity.Memory
}

func (w Weight) String() string {
	return fmt.Sprintf("cpu=%d memory=%d", w.CPU, w.Memory)
}

// OversizedWeightError reports a target whose declared weight can never fit
// the total capacity. Admitting it would deadlock, so it is rejected as a
// configuration error instead.
type OversizedWeightError struct {
	Target   label.Label
	Weight   Weight
	Capacity Weight
}

func (e *OversizedWeightError) Error() string {
	return fmt.Sprintf("target %s declares weight (%s) exceeding total capacity (%s)",
		e.Target, e.Weight, e.Capacity)
}

// waiter is one pending admission. ready is closed exactly once, when the
// reservation has been made on the waiter's behalf.
type waiter struct {
	target   label.Label
	weight   Weight
	priority int
	seq      uint64
	ready    chan struct{}
}

// Scheduler tracks a fixed capacity vector and the reservations against it.
// Safe for concurrent use.
type Scheduler struct {
	capacity Weight

	mu      sync.Mutex
	used    Weight
	waiters []*waiter // kept ordered: priority desc, then seq asc
	nextSeq uint64
}

// New creates a scheduler with the given total capacity.
func New(capacity Weight) *Scheduler {
	return &Scheduler{capacity: capacity}
}

// Capacity returns the fixed total capacity.
func (s *Scheduler) Capacity() Weight { return s.capacity }

// Used returns the currently reserved weight.
func (s *Scheduler) Used() Weight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Acquire blocks until the target's weight has been reserved or the context
// is done. priority is the size of the target's remaining dependent closure;
// larger values are admitted first. A weight exceeding total capacity fails
// immediately with OversizedWeightError.
func (s *Scheduler) Acquire(ctx context.Context, target label.Label, weight Weight, priority int) error {
	if !weight.Fits(s.capacity) {
		return &OversizedWeightError{Target: target, Weight: weight, Capacity: s.capacity}
	}

	s.mu.Lock()
	w := &waiter{
		target:   target,
		weight:   weight,
		priority: priority,
		seq:      s.nextSeq,
		ready:    make(chan struct{}),
	}
	s.nextSeq++
	s.enqueueLocked(w)
	s.grantLocked()
	s.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		defer s.mu.Unlock()
		select {
		case <-w.ready:
			// The grant raced the cancellation; hand the reservation back.
			s.used = s.used.Sub(weight)
			s.grantLocked()
		default:
			s.removeLocked(w)
		}
		return ctx.Err()
	}
}

// Release returns a previously acquired reservation and wakes whatever now
// fits.
func (s *Scheduler) Release(weight Weight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = s.used.Sub(weight)
	s.grantLocked()
}

// enqueueLocked inserts the waiter keeping the queue ordered by priority
// descending, then arrival order.
func (s *Scheduler) enqueueLocked(w *waiter) {
	at := len(s.waiters)
	for i, existing := range s.waiters {
		if w.priority > existing.priority {
			at = i
			break
		}
	}
	s.waiters = append(s.waiters, nil)
	copy(s.waiters[at+1:], s.waiters[at:])
	s.waiters[at] = w
}

func (s *Scheduler) removeLocked(w *waiter) {
	for i, existing := range s.waiters {
		if existing == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// grantLocked walks the queue in admission order and reserves capacity for
// every waiter that fits what remains. Scanning past a blocked high-priority
// waiter keeps the pool busy without reordering ahead of it anything that
// would not have fit anyway.
func (s *Scheduler) grantLocked() {
	remaining := s.waiters[:0:0]
	for _, w := range s.waiters {
		if w.weight.Fits(s.capacity.Sub(s.used)) {
			s.used = s.used.Add(w.weight)
			close(w.ready)
			continue
		}
		remaining = append(remaining, w)
	}
	s.waiters = remaining
}
