package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/vk/buildgrid/internal/cache"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/label"
)

// CommandSource resolves the shell command declared for a target, if any.
// The engine's executor boundary carries no rule metadata, so the command
// lookup is injected by whoever owns the graph.
type CommandSource func(target label.Label) (string, bool)

// Local runs targets on the coordinating host: a target with a declared
// command is executed through the shell and its stdout becomes the
// artifact; a target without one produces an empty marker artifact, which
// still participates in caching and fingerprint flow.
type Local struct {
	commands CommandSource
}

// NewLocal creates a local executor resolving commands through the source.
func NewLocal(commands CommandSource) *Local {
	return &Local{commands: commands}
}

// Execute implements Executor.
func (l *Local) Execute(ctx context.Context, req Request) (cache.Artifact, error) {
	logger := ctxlog.FromContext(ctx)

	command, ok := l.commands(req.Target)
	if !ok {
		return cache.Artifact{Content: []byte{}, CreatedAt: time.Now()}, nil
	}

	logger.Debug("Running target command.", "target", req.Target, "command", command)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return cache.Artifact{}, fmt.Errorf("command interrupted: %w", context.Cause(ctx))
		}
		return cache.Artifact{}, fmt.Errorf("command %q: %w: %s", command, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return cache.Artifact{Content: stdout.Bytes(), CreatedAt: time.Now()}, nil
}
