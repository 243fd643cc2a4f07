package classify

import (
	"github.com/vk/buildgrid/internal/engine"
	"github.com/vk/buildgrid/internal/graph"
	"github.com/vk/buildgrid/internal/rulesrc"
	"github.com/vk/buildgrid/internal/sched"
	"github.com/vk/buildgrid/internal/snapstore"
)

// Default returns the classifier used by the buildgrid binary. Rule order
// matters: interruption outranks everything, then declaration problems,
// then graph integrity, then storage, then build failures.
func Default() *Classifier {
	return New(
		Rule{
			Match:   interrupted,
			Outcome: Outcome{Category: "interrupted", ExitCode: ExitInterrupted},
		},
		Rule{
			Match: func(err error) bool {
				coder, ok := err.(exitCoder)
				return ok && coder.ExitCode() != 0
			},
			Outcome: Outcome{Category: "usage", ExitCode: ExitUsage},
		},
		Rule{
			Match:   anyOf(As[*rulesrc.ParseError](), As[*rulesrc.DuplicateTargetError](), As[*sched.OversizedWeightError]()),
			Outcome: Outcome{Category: "config", ExitCode: ExitUsage},
		},
		Rule{
			Match: anyOf(
				As[*graph.UnknownTargetError](),
				As[*graph.DanglingEdgeError](),
				As[*graph.CycleError](),
				As[*graph.DuplicateTargetError](),
			),
			Outcome: Outcome{Category: "graph", ExitCode: ExitGraph},
		},
		Rule{
			Match:   As[*snapstore.StoreError](),
			Outcome: Outcome{Category: "storage", ExitCode: ExitStorage},
		},
		Rule{
			Match:   anyOf(As[*engine.ExecutionError](), As[*engine.SkippedError]()),
			Outcome: Outcome{Category: "build", ExitCode: ExitBuild},
		},
	)
}

// anyOf combines predicates with OR.
func anyOf(predicates ...func(error) bool) func(error) bool {
	return func(err error) bool {
		for _, p := range predicates {
			if p(err) {
				return true
			}
		}
		return false
	}
}
