// Package classify maps errors to process-level outcomes. The rest of the
// system raises typed errors and never decides exit codes; this package
// holds the single ordered rule list that turns any error, wherever it was
// wrapped, into a category and an exit code for main.
package classify

import (
	"context"
	"errors"
	"reflect"
)

// Exit codes for the buildgrid process.
const (
	ExitUnknown     = 1
	ExitUsage       = 2
	ExitGraph       = 3
	ExitBuild       = 4
	ExitStorage     = 5
	ExitInterrupted = 130
)

// maxCauseDepth bounds the unwrap walk; cause chains built from joined
// errors can be wide and, with misbehaving Unwrap implementations, cyclic.
const maxCauseDepth = 32

// Outcome is the process-level verdict for an error.
type Outcome struct {
	Category string
	ExitCode int
	Message  string
}

// Rule pairs a predicate with the outcome it selects. Match is evaluated
// against every node of an error's cause chain.
type Rule struct {
	Match   func(error) bool
	Outcome Outcome
}

// Classifier evaluates an ordered rule list, first match wins. Earlier
// rules take precedence even when a later rule matches a shallower cause.
type Classifier struct {
	rules []Rule
}

// New creates a classifier with the given rules, evaluated in order.
func New(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the outcome for err. A nil error is a success outcome
// with exit code 0; an error no rule matches falls through to unknown.
func (c *Classifier) Classify(err error) Outcome {
	if err == nil {
		return Outcome{Category: "success", ExitCode: 0}
	}

	chain := causeChain(err)
	for _, rule := range c.rules {
		for _, cause := range chain {
			if rule.Match(cause) {
				out := rule.Outcome
				if out.Message == "" {
					out.Message = err.Error()
				}
				return out
			}
		}
	}
	return Outcome{Category: "unknown", ExitCode: ExitUnknown, Message: err.Error()}
}

// causeChain flattens an error's cause tree in depth-first order, bounded
// by a visited set and a depth cap.
func causeChain(err error) []error {
	var chain []error
	visited := make(map[error]struct{})

	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		if e == nil || depth > maxCauseDepth {
			return
		}
		if isComparable(e) {
			if _, ok := visited[e]; ok {
				return
			}
			visited[e] = struct{}{}
		}
		chain = append(chain, e)

		switch unwrapped := e.(type) {
		case interface{ Unwrap() error }:
			walk(unwrapped.Unwrap(), depth+1)
		case interface{ Unwrap() []error }:
			for _, cause := range unwrapped.Unwrap() {
				walk(cause, depth+1)
			}
		}
	}
	walk(err, 0)
	return chain
}

// isComparable guards the visited map: error values with uncomparable
// dynamic types would panic as map keys.
func isComparable(err error) bool {
	return reflect.TypeOf(err).Comparable()
}

// As adapts errors.As to a Rule predicate.
func As[T error]() func(error) bool {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}

// Is adapts errors.Is to a Rule predicate.
func Is(sentinel error) func(error) bool {
	return func(err error) bool {
		return errors.Is(err, sentinel)
	}
}

// exitCoder is implemented by errors that carry their own exit code, such
// as command-line usage errors.
type exitCoder interface {
	ExitCode() int
}

// interrupted matches request cancellation however it surfaces.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
