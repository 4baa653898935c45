package buildexec

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/secluso/release-tools/internal/execx"
)

// BuilderHandle is the one shared container-builder instance a run uses for
// every containerized step. It is acquired at run start and released on
// every exit path; callers pass it by reference, never through a global.
type BuilderHandle struct {
	Name     string
	runner   execx.CommandRunner
	released bool
}

// AcquireBuilder creates a dedicated buildx builder instance for this run.
func AcquireBuilder(ctx context.Context, runner execx.CommandRunner) (*BuilderHandle, error) {
	name := "secluso-release-" + uuid.NewString()[:8]
	if _, err := runner.Run(ctx, "", []string{"docker", "buildx", "create", "--name", name}, nil); err != nil {
		return nil, fmt.Errorf("acquire container builder: %w", err)
	}
	return &BuilderHandle{Name: name, runner: runner}, nil
}

// Release tears the builder down. Idempotent; removal failures are reported
// to stderr but never mask the run's own outcome.
func (b *BuilderHandle) Release(ctx context.Context) {
	if b == nil || b.released {
		return
	}
	b.released = true
	if _, err := b.runner.Run(ctx, "", []string{"docker", "buildx", "rm", b.Name}, nil); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to remove builder %s: %v\n", b.Name, err)
	}
}
