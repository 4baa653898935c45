package canonical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/secluso/release-tools/internal/execx"
)

// Fixed build identity for rpm rebuilds. rpmbuild otherwise embeds the real
// hostname and wall-clock time into the package headers.
const (
	rpmBuildHost = "build.secluso.invalid"
)

// RPMSpec describes the rpm to rebuild from an already-canonicalized payload
// tree.
type RPMSpec struct {
	Name    string
	Version string
	Release string
	Summary string
	Arch    string
}

// RebuildRPM regenerates rpmPath from the payload tree at treeRoot instead
// of trusting a fresh native rpmbuild of the sources. The tree comes from
// the canonicalized deb data member, so deb and rpm payloads are
// byte-identical. Build host and timestamps are pinned.
func RebuildRPM(ctx context.Context, runner execx.CommandRunner, spec RPMSpec, treeRoot, rpmPath string) error {
	if spec.Name == "" || spec.Version == "" || spec.Arch == "" {
		return fmt.Errorf("incomplete rpm spec: %+v", spec)
	}
	if spec.Release == "" {
		spec.Release = "1"
	}
	// rpm versions cannot contain dashes; pre-release separators become tildes.
	spec.Version = strings.ReplaceAll(spec.Version, "-", "~")
	if spec.Summary == "" {
		spec.Summary = spec.Name
	}

	topDir, err := os.MkdirTemp("", "secluso-rpm-")
	if err != nil {
		return fmt.Errorf("create rpm workdir: %w", err)
	}
	defer os.RemoveAll(topDir)
	for _, d := range []string{"SPECS", "RPMS", "BUILDROOT"} {
		if err := os.MkdirAll(filepath.Join(topDir, d), 0o755); err != nil {
			return fmt.Errorf("create rpm workdir: %w", err)
		}
	}

	files, err := payloadFileList(treeRoot)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("payload tree %s is empty", treeRoot)
	}

	specPath := filepath.Join(topDir, "SPECS", spec.Name+".spec")
	if err := os.WriteFile(specPath, []byte(renderSpec(spec, files)), 0o644); err != nil {
		return fmt.Errorf("write rpm spec: %w", err)
	}

	epoch := fmt.Sprintf("%d", RefInstant.Unix())
	argv := []string{
		"rpmbuild", "-bb",
		"--buildroot", treeRoot,
		"--define", "_topdir " + topDir,
		"--define", "_buildhost " + rpmBuildHost,
		"--define", "clamp_mtime_to_source_date_epoch 1",
		"--define", "use_source_date_epoch_as_buildtime 1",
		"--target", spec.Arch,
		specPath,
	}
	if _, err := runner.Run(ctx, "", argv, map[string]string{"SOURCE_DATE_EPOCH": epoch}); err != nil {
		return fmt.Errorf("rpmbuild: %w", err)
	}

	built := filepath.Join(topDir, "RPMS", spec.Arch,
		fmt.Sprintf("%s-%s-%s.%s.rpm", spec.Name, spec.Version, spec.Release, spec.Arch))
	raw, err := os.ReadFile(built)
	if err != nil {
		return fmt.Errorf("rpmbuild produced no package: %w", err)
	}
	if err := os.WriteFile(rpmPath, raw, 0o644); err != nil {
		return fmt.Errorf("write rpm %s: %w", rpmPath, err)
	}
	return nil
}

func payloadFileList(root string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, "/"+filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk payload tree %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func renderSpec(spec RPMSpec, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", spec.Name)
	fmt.Fprintf(&b, "Version: %s\n", spec.Version)
	fmt.Fprintf(&b, "Release: %s\n", spec.Release)
	fmt.Fprintf(&b, "Summary: %s\n", spec.Summary)
	b.WriteString("License: GPL-3.0-or-later\n")
	b.WriteString("AutoReqProv: no\n")
	b.WriteString("\n%description\n")
	fmt.Fprintf(&b, "%s\n", spec.Summary)
	b.WriteString("\n%files\n")
	b.WriteString("%defattr(-,root,root,-)\n")
	for _, f := range files {
		fmt.Fprintf(&b, "\"%s\"\n", f)
	}
	return b.String()
}
