package buildexec

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/secluso/release-tools/internal/execx"
	"github.com/secluso/release-tools/internal/plan"
)

// BundleOutput is what one desktop-bundle invocation produced: the bundle
// files themselves and, on Linux, the staged application directory the
// AppImage canonicalizer restages from.
type BundleOutput struct {
	Files  []string
	AppDir string
}

// Bundler abstracts the desktop bundling toolchain. The real implementation
// shells out to the Tauri CLI; tests substitute fakes.
type Bundler interface {
	// Capabilities reports the bundle formats the local toolchain can
	// produce natively.
	Capabilities(ctx context.Context) ([]string, error)
	BundleNative(ctx context.Context, triple, format, outDir string) (BundleOutput, error)
	BundleInContainer(ctx context.Context, builder *BuilderHandle, triple, format, outDir string) (BundleOutput, error)
}

// acceptableFormats lists bundle formats per platform family, in preference
// order.
func acceptableFormats(fam plan.Family) []string {
	switch fam {
	case plan.FamilyWindows:
		return []string{"nsis", "msi"}
	case plan.FamilyMacX64, plan.FamilyMacArm64:
		return []string{"app", "dmg"}
	case plan.FamilyLinux:
		return []string{"appimage", "deb", "rpm"}
	default:
		return nil
	}
}

// bundleTriple picks a format the local toolchain supports, bundling
// natively when possible and inside the pinned container otherwise.
// Host-only families must bundle natively; anything else is a
// HostCapabilityError, never a silent fallback. The whole step retries
// exactly once, only on a transient name-resolution/network failure.
func bundleTriple(ctx context.Context, b Bundler, builder *BuilderHandle, triple, outDir string) (BundleOutput, error) {
	out, err := bundleTripleOnce(ctx, b, builder, triple, outDir)
	if err != nil && execx.IsTransientNetwork(err, "") {
		return bundleTripleOnce(ctx, b, builder, triple, outDir)
	}
	return out, err
}

func bundleTripleOnce(ctx context.Context, b Bundler, builder *BuilderHandle, triple, outDir string) (BundleOutput, error) {
	fam, err := plan.Classify(triple)
	if err != nil {
		return BundleOutput{}, err
	}
	wanted := acceptableFormats(fam)
	if len(wanted) == 0 {
		return BundleOutput{}, fmt.Errorf("no bundle formats defined for family %s", fam)
	}

	caps, err := b.Capabilities(ctx)
	if err != nil {
		return BundleOutput{}, fmt.Errorf("probe bundler capabilities: %w", err)
	}
	capSet := make(map[string]bool, len(caps))
	for _, c := range caps {
		capSet[strings.ToLower(strings.TrimSpace(c))] = true
	}

	for _, format := range wanted {
		if capSet[format] {
			return b.BundleNative(ctx, triple, format, outDir)
		}
	}

	if fam.HostOnly() {
		return BundleOutput{}, &HostCapabilityError{Triple: triple, Wanted: wanted}
	}
	return b.BundleInContainer(ctx, builder, triple, wanted[0], outDir)
}

// TauriBundler drives the desktop bundling toolchain as a subprocess.
type TauriBundler struct {
	Runner    execx.CommandRunner
	Workspace string
	// Image is the pinned bundler container reference for fallback builds.
	Image string
}

func (tb *TauriBundler) Capabilities(ctx context.Context) ([]string, error) {
	out, err := tb.Runner.Run(ctx, tb.Workspace,
		[]string{"cargo", "tauri", "bundle", "--print-formats"}, nil)
	if err != nil {
		return nil, err
	}
	formats := make([]string, 0)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			formats = append(formats, line)
		}
	}
	return formats, nil
}

func (tb *TauriBundler) BundleNative(ctx context.Context, triple, format, outDir string) (BundleOutput, error) {
	_, err := tb.Runner.Run(ctx, tb.Workspace, []string{
		"cargo", "tauri", "build", "--target", triple, "--bundles", format,
	}, nil)
	if err != nil {
		return BundleOutput{}, fmt.Errorf("native bundle %s for %s: %w", format, triple, err)
	}
	return tb.collect(triple, format, outDir)
}

func (tb *TauriBundler) BundleInContainer(ctx context.Context, builder *BuilderHandle, triple, format, outDir string) (BundleOutput, error) {
	if builder == nil {
		return BundleOutput{}, fmt.Errorf("container bundle for %s requires an acquired builder", triple)
	}
	_, err := tb.Runner.Run(ctx, "", []string{
		"docker", "run", "--rm",
		"--mount", fmt.Sprintf("type=bind,source=%s,target=/src", tb.Workspace),
		"-w", "/src",
		"-e", "BUILDX_BUILDER=" + builder.Name,
		tb.Image,
		"cargo", "tauri", "build", "--target", triple, "--bundles", format,
	}, nil)
	if err != nil {
		return BundleOutput{}, fmt.Errorf("container bundle %s for %s: %w", format, triple, err)
	}
	return tb.collect(triple, format, outDir)
}

var bundleGlobs = map[string]string{
	"nsis":     "*-setup.exe",
	"msi":      "*.msi",
	"app":      "*.app.tar.gz",
	"dmg":      "*.dmg",
	"appimage": "*.AppImage",
	"deb":      "*.deb",
	"rpm":      "*.rpm",
}

func (tb *TauriBundler) collect(triple, format, _ string) (BundleOutput, error) {
	pattern, ok := bundleGlobs[format]
	if !ok {
		return BundleOutput{}, fmt.Errorf("unknown bundle format %s", format)
	}
	bundleDir := filepath.Join(tb.Workspace, "target", triple, "release", "bundle", format)
	files, err := filepath.Glob(filepath.Join(bundleDir, pattern))
	if err != nil {
		return BundleOutput{}, err
	}
	if len(files) == 0 {
		return BundleOutput{}, fmt.Errorf("bundler reported success but no %s output under %s", format, bundleDir)
	}
	out := BundleOutput{Files: files}
	if format == "appimage" {
		appDirs, _ := filepath.Glob(filepath.Join(bundleDir, "*.AppDir"))
		if len(appDirs) > 0 {
			out.AppDir = appDirs[0]
		}
	}
	return out, nil
}
