package buildexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/secluso/release-tools/internal/execx"
)

// The smoke check is the only bounded step in a run; builds and
// canonicalization never time out at the orchestration layer.
const smokeTimeout = 10 * time.Second

// SmokeCheck runs a produced auxiliary binary with --version under a short
// timeout. The result is advisory: callers log a failure and move on, it
// never affects run success.
func SmokeCheck(ctx context.Context, runner execx.CommandRunner, binPath string) error {
	ctx, cancel := context.WithTimeout(ctx, smokeTimeout)
	defer cancel()
	out, err := runner.Run(ctx, "", []string{binPath, "--version"}, nil)
	if err != nil {
		return fmt.Errorf("smoke check %s: %w", binPath, err)
	}
	if strings.TrimSpace(out) == "" {
		return fmt.Errorf("smoke check %s: empty version output", binPath)
	}
	return nil
}
