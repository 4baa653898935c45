package canonical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func stagePayloadTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range []string{"usr/bin/secluso-app", "usr/share/applications/secluso.desktop"} {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(f), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestRebuildRPMPinsBuildIdentity(t *testing.T) {
	tree := stagePayloadTree(t)
	out := filepath.Join(t.TempDir(), "secluso-app.rpm")

	runner := &fakeRunner{onRun: func(argv []string, env map[string]string) error {
		if argv[0] != "rpmbuild" {
			return fmt.Errorf("unexpected tool %s", argv[0])
		}
		joined := strings.Join(argv, " ")
		if !strings.Contains(joined, "_buildhost "+rpmBuildHost) {
			return fmt.Errorf("build host not pinned: %s", joined)
		}
		epoch := fmt.Sprintf("%d", RefInstant.Unix())
		if env["SOURCE_DATE_EPOCH"] != epoch {
			return fmt.Errorf("SOURCE_DATE_EPOCH not pinned: %v", env)
		}
		// Emit the package where rpmbuild would.
		var topdir string
		for _, a := range argv {
			if strings.HasPrefix(a, "_topdir ") {
				topdir = strings.TrimPrefix(a, "_topdir ")
			}
		}
		if topdir == "" {
			return fmt.Errorf("no _topdir define: %s", joined)
		}
		dst := filepath.Join(topdir, "RPMS", "x86_64", "secluso-app-0.5.0-1.x86_64.rpm")
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dst, []byte("rpm-bytes"), 0o644)
	}}

	spec := RPMSpec{Name: "secluso-app", Version: "0.5.0", Arch: "x86_64"}
	if err := RebuildRPM(context.Background(), runner, spec, tree, out); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "rpm-bytes" {
		t.Fatalf("rpm not copied: %q", raw)
	}
}

func TestRebuildRPMSpecListsSortedFiles(t *testing.T) {
	tree := stagePayloadTree(t)
	out := filepath.Join(t.TempDir(), "out.rpm")

	var specBody string
	runner := &fakeRunner{onRun: func(argv []string, _ map[string]string) error {
		specPath := argv[len(argv)-1]
		raw, err := os.ReadFile(specPath)
		if err != nil {
			return err
		}
		specBody = string(raw)
		var topdir string
		for _, a := range argv {
			if strings.HasPrefix(a, "_topdir ") {
				topdir = strings.TrimPrefix(a, "_topdir ")
			}
		}
		dst := filepath.Join(topdir, "RPMS", "x86_64", "secluso-app-0.5.0-1.x86_64.rpm")
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dst, []byte("rpm"), 0o644)
	}}

	spec := RPMSpec{Name: "secluso-app", Version: "0.5.0", Arch: "x86_64"}
	if err := RebuildRPM(context.Background(), runner, spec, tree, out); err != nil {
		t.Fatal(err)
	}
	binIdx := strings.Index(specBody, "/usr/bin/secluso-app")
	desktopIdx := strings.Index(specBody, "/usr/share/applications/secluso.desktop")
	if binIdx == -1 || desktopIdx == -1 || binIdx > desktopIdx {
		t.Fatalf("file list missing or unsorted:\n%s", specBody)
	}
}

func TestRebuildRPMEmptyTree(t *testing.T) {
	spec := RPMSpec{Name: "n", Version: "1", Arch: "x86_64"}
	err := RebuildRPM(context.Background(), &fakeRunner{}, spec, t.TempDir(), filepath.Join(t.TempDir(), "out.rpm"))
	if err == nil {
		t.Fatal("expected error for empty payload tree")
	}
}

func TestRebuildRPMIncompleteSpec(t *testing.T) {
	err := RebuildRPM(context.Background(), &fakeRunner{}, RPMSpec{Name: "n"}, t.TempDir(), "out.rpm")
	if err == nil {
		t.Fatal("expected error for incomplete spec")
	}
}
