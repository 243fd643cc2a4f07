package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/buildgrid/internal/app"
	"github.com/vk/buildgrid/internal/classify"
	"github.com/vk/buildgrid/internal/cli"
	"github.com/vk/buildgrid/internal/engine"
)

// main is the entrypoint for the buildgrid binary.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stdout, os.Args[1:]))
}

// run encapsulates the process logic so the exit path stays in one place:
// whatever goes wrong, the failure classifier decides the exit code.
func run(ctx context.Context, outW io.Writer, args []string) int {
	classifier := classify.Default()

	config, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return report(outW, classifier.Classify(err))
	}
	if shouldExit {
		return 0
	}

	a, err := app.New(ctx, outW, config)
	if err != nil {
		return report(outW, classifier.Classify(err))
	}

	summary, err := a.Run(ctx)
	if err != nil {
		return report(outW, classifier.Classify(err))
	}
	if !summary.OK() {
		return report(outW, classifier.Classify(firstFailure(summary)))
	}
	return 0
}

// firstFailure picks the error the process exit should reflect: the first
// Failed result in label order, falling back to the first non-success.
func firstFailure(summary *engine.Summary) error {
	failed := summary.Failed()
	for _, res := range failed {
		if res.State == engine.StateFailed {
			return res.Err
		}
	}
	if len(failed) > 0 {
		return failed[0].Err
	}
	return nil
}

func report(outW io.Writer, outcome classify.Outcome) int {
	fmt.Fprintf(outW, "buildgrid: %s: %s\n", outcome.Category, outcome.Message)
	return outcome.ExitCode
}
