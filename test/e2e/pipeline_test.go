//go:build e2e

package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/secluso/release-tools/internal/compare"
	"github.com/secluso/release-tools/internal/plan"
	"github.com/secluso/release-tools/internal/rundir"
)

func TestFullPipeline_BuildTwiceAndCompare(t *testing.T) {
	ex := newExecutor(t)
	p, err := plan.Resolve("server", "release")
	if err != nil {
		t.Fatal(err)
	}

	tmp := t.TempDir()
	runA := filepath.Join(tmp, "run-a")
	runB := filepath.Join(tmp, "run-b")
	ma, err := ex.Execute(context.Background(), p, runA)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	mb, err := ex.Execute(context.Background(), p, runB)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	fa, err := ma.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	fb, err := mb.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if fa != fb {
		t.Errorf("manifest fingerprints differ across identical runs: %s vs %s", fa, fb)
	}

	r := compare.Run(runA, runB)
	if !r.Passed {
		t.Fatalf("comparison failed: exit %d, violations: %v", r.ExitCode, r.Violations)
	}
	if r.ExitCode != compare.ExitPass {
		t.Errorf("exit code = %d, want %d", r.ExitCode, compare.ExitPass)
	}
	if r.KeyCount != len(ma.Artifacts) {
		t.Errorf("key count = %d, want %d", r.KeyCount, len(ma.Artifacts))
	}
}

func TestFullPipeline_TamperDetection(t *testing.T) {
	ex := newExecutor(t)
	p, err := plan.Resolve("server", "server")
	if err != nil {
		t.Fatal(err)
	}

	tmp := t.TempDir()
	runA := filepath.Join(tmp, "run-a")
	runB := filepath.Join(tmp, "run-b")
	if _, err := ex.Execute(context.Background(), p, runA); err != nil {
		t.Fatal(err)
	}
	mb, err := ex.Execute(context.Background(), p, runB)
	if err != nil {
		t.Fatal(err)
	}

	// Flip one byte in run B's binary after sealing.
	dir, err := rundir.Open(runB)
	if err != nil {
		t.Fatal(err)
	}
	target := dir.ArtifactPath(mb.Artifacts[0].BinPath)
	raw, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)/2] ^= 0x01
	if err := os.WriteFile(target, raw, 0o755); err != nil {
		t.Fatal(err)
	}

	r := compare.Run(runA, runB)
	if r.Passed {
		t.Error("expected comparison to fail after tampering")
	}
	if r.ExitCode != compare.ExitCompareFail {
		t.Errorf("exit code = %d, want %d (hash mismatch)", r.ExitCode, compare.ExitCompareFail)
	}
	found := false
	for _, v := range r.Verdicts {
		if v.Status == compare.StatusManifestHash {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a manifest-hash verdict, got %+v", r.Verdicts)
	}
}

func TestFullPipeline_SupersetRuns(t *testing.T) {
	ex := newExecutor(t)

	small, err := plan.Resolve("server", "server")
	if err != nil {
		t.Fatal(err)
	}
	large, err := plan.Resolve("server", "release")
	if err != nil {
		t.Fatal(err)
	}

	tmp := t.TempDir()
	runSmall := filepath.Join(tmp, "small")
	runLarge := filepath.Join(tmp, "large")
	if _, err := ex.Execute(context.Background(), small, runSmall); err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Execute(context.Background(), large, runLarge); err != nil {
		t.Fatal(err)
	}

	// The server profile's artifacts are a subset of the release profile's;
	// extra keys on the large side are informational, not failures.
	r := compare.Run(runSmall, runLarge)
	if !r.Passed {
		t.Fatalf("superset comparison failed: exit %d, missing %v", r.ExitCode, r.MissingKeys)
	}
	if len(r.ExtraKeys) == 0 {
		t.Error("expected extra keys on the larger run")
	}
}
