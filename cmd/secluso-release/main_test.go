package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/secluso/release-tools/internal/buildexec"
	"github.com/secluso/release-tools/internal/canonical"
	"github.com/secluso/release-tools/internal/compare"
	"github.com/secluso/release-tools/internal/hash"
	"github.com/secluso/release-tools/internal/manifest"
	"github.com/secluso/release-tools/internal/plan"
	"github.com/secluso/release-tools/internal/rundir"
	"github.com/secluso/release-tools/internal/toolchain"
)

func writeRun(t *testing.T, root string, content []byte) {
	t.Helper()
	rel := rundir.RelPath(plan.TripleLinuxX64, "secluso-server")
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o755); err != nil {
		t.Fatal(err)
	}
	digest, _, err := hash.DigestFile(path)
	if err != nil {
		t.Fatal(err)
	}
	m := manifest.Manifest{
		Build: manifest.BuildInfo{
			Target:    "server",
			Profile:   "server",
			RunID:     "run-" + filepath.Base(root),
			Timestamp: "2026-08-31T00:00:00Z",
		},
		Artifacts: []manifest.Record{{
			Package:         "secluso-server",
			Target:          plan.TripleLinuxX64,
			Bin:             "secluso-server",
			BinPath:         rel,
			SHA256:          digest,
			Crate:           "secluso-server",
			Version:         "0.9.0",
			CrateLockSHA256: digest,
			RustDigest:      "ghcr.io/secluso/rust-builder@sha256:" + digest,
		}},
	}
	if _, err := manifest.Write(root, m); err != nil {
		t.Fatal(err)
	}
}

func TestCompareCommandJSONReport(t *testing.T) {
	tmp := t.TempDir()
	runA := filepath.Join(tmp, "a")
	runB := filepath.Join(tmp, "b")
	writeRun(t, runA, []byte("same-bytes"))
	writeRun(t, runB, []byte("same-bytes"))
	outPath := filepath.Join(tmp, "compare.json")

	cmd := newCompareCommand()
	cmd.SetArgs([]string{runA, runB, "--format", "json", "--out", outPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("compare command failed: %v", err)
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var r compare.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		t.Fatal(err)
	}
	if !r.Passed || r.ExitCode != compare.ExitPass {
		t.Fatalf("expected pass, got %+v", r)
	}
}

func TestCompareCommandFailureExitCode(t *testing.T) {
	tmp := t.TempDir()
	runA := filepath.Join(tmp, "a")
	runB := filepath.Join(tmp, "b")
	writeRun(t, runA, []byte("run a bytes"))
	writeRun(t, runB, []byte("run b bytes"))

	cmd := newCompareCommand()
	cmd.SetArgs([]string{runA, runB, "--format", "json", "--out", filepath.Join(tmp, "r.json")})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected comparison failure")
	}
	var ce cliError
	if !errors.As(err, &ce) {
		t.Fatalf("expected cliError, got %T: %v", err, err)
	}
	if ce.code == compare.ExitPass {
		t.Fatalf("failure must not map to the pass exit code: %+v", ce)
	}
}

func TestBuildCommandUnknownPlan(t *testing.T) {
	cmd := newBuildCommand()
	cmd.SetArgs([]string{"--target", "toaster", "--profile", "release"})
	err := cmd.Execute()
	var pe *plan.PlanError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlanError, got %v", err)
	}
	if exitCodeFor(err) != compare.ExitPlan {
		t.Fatalf("plan error maps to %d, want %d", exitCodeFor(err), compare.ExitPlan)
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&plan.PlanError{Target: "x", Profile: "y"}, compare.ExitPlan},
		{&toolchain.MissingDigestError{Triple: "t"}, compare.ExitMissingDigest},
		{&buildexec.MissingArtifactError{Package: "p"}, compare.ExitMissingArtifact},
		{&canonical.CanonicalizationError{Triple: "t", Step: "deb", Err: errors.New("boom")}, compare.ExitCanonicalization},
		{&buildexec.HostCapabilityError{Triple: "t"}, compare.ExitHostCapability},
		{fmt.Errorf("wrapped: %w", &toolchain.MissingDigestError{Triple: "t"}), compare.ExitMissingDigest},
		{errors.New("anything else"), 1},
	}
	for _, tc := range cases {
		if got := exitCodeFor(tc.err); got != tc.want {
			t.Errorf("exitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestPlanCommand(t *testing.T) {
	cmd := newPlanCommand()
	cmd.SetArgs([]string{"--target", "camera", "--profile", "release"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("plan command failed: %v", err)
	}
}

func TestDigestsCommand(t *testing.T) {
	cmd := newDigestsCommand()
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("digests command failed: %v", err)
	}
}

func TestManifestValidateCommand(t *testing.T) {
	run := filepath.Join(t.TempDir(), "run")
	writeRun(t, run, []byte("bytes"))

	cmd := newManifestCommand()
	cmd.SetArgs([]string{"validate", run})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate failed on a sealed run: %v", err)
	}

	// Explicit manifest path works too.
	cmd = newManifestCommand()
	cmd.SetArgs([]string{"validate", filepath.Join(run, manifest.FileName)})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate failed on manifest path: %v", err)
	}
}

func TestManifestValidateRejectsMalformed(t *testing.T) {
	run := t.TempDir()
	if err := os.WriteFile(filepath.Join(run, manifest.FileName), []byte(`{"artifacts": "no"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := newManifestCommand()
	cmd.SetArgs([]string{"validate", run})
	err := cmd.Execute()
	var ce cliError
	if !errors.As(err, &ce) {
		t.Fatalf("expected cliError, got %T: %v", err, err)
	}
	if ce.code != compare.ExitCompareStructure {
		t.Fatalf("expected exit code %d, got %d", compare.ExitCompareStructure, ce.code)
	}
}

func TestLoadRegistryWithOverrides(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "release.yaml")
	if err := os.WriteFile(cfg, []byte(
		"workspace_root: /srv/secluso\n"+
			"toolchain_digests:\n"+
			"  x86_64-unknown-linux-gnu: ghcr.io/secluso/rust-builder@sha256:"+
			"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	registry, workspace, err := loadRegistry(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if workspace != "/srv/secluso" {
		t.Fatalf("workspace override ignored: %s", workspace)
	}
	got, err := registry.Lookup(plan.TripleLinuxX64)
	if err != nil {
		t.Fatal(err)
	}
	if got != "ghcr.io/secluso/rust-builder@sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Fatalf("digest override ignored: %s", got)
	}
}
