//go:build e2e

package e2e

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/secluso/release-tools/internal/buildexec"
	"github.com/secluso/release-tools/internal/toolchain"
)

// stubToolchain simulates the containerized cargo toolchain deterministically:
// the same crate and triple always produce the same bytes, so two runs of the
// same plan are byte-identical the way a reproducible toolchain would be.
type stubToolchain struct{}

func (stubToolchain) Run(_ context.Context, dir string, argv []string, _ map[string]string) (string, error) {
	joined := strings.Join(argv, " ")
	if strings.Contains(joined, "cargo metadata") {
		return `{"packages":[
			{"name":"secluso-server","version":"0.9.0"},
			{"name":"secluso-config-tool","version":"0.4.1"},
			{"name":"secluso-camera-hub","version":"0.9.0"}
		]}`, nil
	}
	if strings.Contains(joined, "cargo build") {
		var triple, crate, workspace string
		for i, a := range argv {
			switch a {
			case "--target":
				triple = argv[i+1]
			case "-p":
				crate = argv[i+1]
			}
			if strings.HasPrefix(a, "type=bind,source=") {
				workspace = strings.TrimSuffix(strings.TrimPrefix(a, "type=bind,source="), ",target=/src")
			}
		}
		sum := sha256.Sum256([]byte(crate + "\x00" + triple))
		out := filepath.Join(workspace, "target", triple, "release", crate)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return "", err
		}
		return "", os.WriteFile(out, []byte(fmt.Sprintf("elf %x", sum)), 0o755)
	}
	return "", nil
}

func newExecutor(t *testing.T) *buildexec.Executor {
	t.Helper()
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "Cargo.lock"), []byte("# pinned\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &buildexec.Executor{
		Runner:    stubToolchain{},
		Registry:  toolchain.NewRegistry(nil),
		Workspace: ws,
	}
}
