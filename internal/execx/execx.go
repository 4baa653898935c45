// Package execx provides the command execution seam shared by the build
// executor and the canonicalizer. External toolchains are opaque
// subprocesses gated on their exit code; tests substitute a fake runner.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts subprocess execution.
type CommandRunner interface {
	Run(ctx context.Context, dir string, argv []string, env map[string]string) (string, error)
}

// OSRunner executes commands on the host with combined output capture.
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, dir string, argv []string, env map[string]string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty argv")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if len(env) != 0 {
		merged := cmd.Environ()
		for k, v := range env {
			merged = append(merged, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = merged
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if msg != "" {
			return out.String(), fmt.Errorf("run %q failed: %w: %s", argv, err, msg)
		}
		return out.String(), fmt.Errorf("run %q failed: %w", argv, err)
	}
	return out.String(), nil
}

// Transient name-resolution/network signatures seen from registry pulls and
// bundler downloads. This deliberately matches only the known failure text;
// other transient classes do not retry.
var transientNetworkSignatures = []string{
	"temporary failure in name resolution",
	"no such host",
	"could not resolve host",
}

// IsTransientNetwork reports whether err or the captured output carries a
// name-resolution/network failure signature.
func IsTransientNetwork(err error, output string) bool {
	if err == nil {
		return false
	}
	haystack := strings.ToLower(err.Error() + "\n" + output)
	for _, sig := range transientNetworkSignatures {
		if strings.Contains(haystack, sig) {
			return true
		}
	}
	return false
}
