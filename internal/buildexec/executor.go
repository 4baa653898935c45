// Package buildexec turns a resolved build plan into a sealed run directory:
// it drives the pinned container toolchains, collects and hashes artifacts,
// canonicalizes Linux bundle formats, and writes the manifest.
package buildexec

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/secluso/release-tools/internal/canonical"
	"github.com/secluso/release-tools/internal/execx"
	"github.com/secluso/release-tools/internal/hash"
	"github.com/secluso/release-tools/internal/manifest"
	"github.com/secluso/release-tools/internal/plan"
	"github.com/secluso/release-tools/internal/rundir"
	"github.com/secluso/release-tools/internal/toolchain"
)

// Executor runs one build plan to completion. Fields are set once; the same
// executor can run multiple plans sequentially but never concurrently.
type Executor struct {
	Runner    execx.CommandRunner
	Registry  *toolchain.Registry
	Bundler   Bundler
	Workspace string
	// Smoke enables the advisory --version check on auxiliary binaries.
	Smoke   bool
	Verbose bool
	Logf    func(format string, args ...any)
}

func (e *Executor) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

// Execute builds every (triple, package) pair the plan names, in plan order,
// and seals the run directory with a manifest. Any fatal error leaves the
// directory unsealed so a later comparison cannot mistake it for a complete
// run.
func (e *Executor) Execute(ctx context.Context, p plan.BuildPlan, runRoot string) (manifest.Manifest, error) {
	var m manifest.Manifest

	// Pre-flight: every triple must have a pinned toolchain identity before
	// any build step runs, so a gap never causes partial plan execution.
	if err := e.Registry.Validate(p.Triples); err != nil {
		return m, err
	}

	run, err := rundir.Create(runRoot)
	if err != nil {
		return m, err
	}

	lockHash, err := LockHash(e.Workspace)
	if err != nil {
		return m, err
	}

	var builder *BuilderHandle
	if p.RequiresContainerFallback {
		builder, err = AcquireBuilder(ctx, e.Runner)
		if err != nil {
			return m, err
		}
		defer builder.Release(ctx)
	}

	var records []manifest.Record
	for _, triple := range p.Triples {
		for _, pkg := range p.Packages {
			if plan.SkipOn(pkg, triple) {
				e.logf("skip %s on %s by package policy", pkg, triple)
				continue
			}
			var recs []manifest.Record
			switch p.Kind {
			case plan.KindBinary:
				recs, err = e.buildBinary(ctx, run, triple, pkg, lockHash)
			case plan.KindDesktopBundle:
				recs, err = e.buildBundle(ctx, run, builder, triple, pkg, lockHash)
			default:
				err = fmt.Errorf("unknown plan kind %q", p.Kind)
			}
			if err != nil {
				return m, err
			}
			records = append(records, recs...)
		}
	}

	m = manifest.Manifest{
		Build: manifest.BuildInfo{
			Target:    p.Target,
			Profile:   p.Profile,
			RunID:     uuid.NewString(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Artifacts: records,
	}
	if _, err := run.Seal(m); err != nil {
		return m, err
	}
	m.SortArtifacts()
	return m, nil
}

// buildBinary compiles one package for one triple inside the pinned
// container and places the resulting binary into the run directory.
func (e *Executor) buildBinary(ctx context.Context, run *rundir.RunDir, triple, pkg, lockHash string) ([]manifest.Record, error) {
	policy := plan.PolicyFor(pkg)
	image, err := e.Registry.Lookup(triple)
	if err != nil {
		return nil, err
	}
	meta, err := ResolveCrate(ctx, e.Runner, e.Workspace, policy.Crate)
	if err != nil {
		return nil, err
	}

	e.logf("build %s (%s) for %s", pkg, policy.Crate, triple)
	_, err = e.Runner.Run(ctx, "", []string{
		"docker", "run", "--rm",
		"--mount", fmt.Sprintf("type=bind,source=%s,target=/src", e.Workspace),
		"-w", "/src",
		image,
		"cargo", "build", "--release", "--target", triple, "-p", policy.Crate,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s for %s: %w", policy.Crate, triple, err)
	}

	built := filepath.Join(e.Workspace, "target", triple, "release", policy.Crate)
	if !hash.FileExists(built) {
		return nil, &MissingArtifactError{Package: pkg, Triple: triple, Bin: policy.Bin, Path: built}
	}

	rel, err := run.PlaceAs(triple, built, policy.Bin)
	if err != nil {
		return nil, err
	}
	digest, _, err := hash.DigestFile(run.ArtifactPath(rel))
	if err != nil {
		return nil, err
	}

	// The config tool is the only artifact runnable on the build host; the
	// check is advisory either way.
	if e.Smoke && pkg == "secluso-config-tool" && triple == plan.TripleLinuxX64 {
		if serr := SmokeCheck(ctx, e.Runner, run.ArtifactPath(rel)); serr != nil {
			e.logf("smoke check failed (advisory): %v", serr)
		}
	}

	return []manifest.Record{{
		Package:         pkg,
		Target:          triple,
		Bin:             policy.Bin,
		BinPath:         rel,
		SHA256:          digest,
		Crate:           meta.Name,
		Version:         meta.Version,
		CrateLockSHA256: lockHash,
		RustDigest:      image,
	}}, nil
}

// buildBundle produces the desktop bundles for one triple, canonicalizes the
// Linux formats, and records every bundle file.
func (e *Executor) buildBundle(ctx context.Context, run *rundir.RunDir, builder *BuilderHandle, triple, pkg, lockHash string) ([]manifest.Record, error) {
	policy := plan.PolicyFor(pkg)
	image, err := e.Registry.Lookup(triple)
	if err != nil {
		return nil, err
	}
	meta, err := ResolveCrate(ctx, e.Runner, e.Workspace, policy.Crate)
	if err != nil {
		return nil, err
	}

	e.logf("bundle %s for %s", pkg, triple)
	out, err := bundleTriple(ctx, e.Bundler, builder, triple, run.Root)
	if err != nil {
		return nil, err
	}
	if len(out.Files) == 0 {
		return nil, &MissingArtifactError{Package: pkg, Triple: triple, Bin: policy.Bin, Path: "(no bundle output)"}
	}

	fam, err := plan.Classify(triple)
	if err != nil {
		return nil, err
	}
	if fam == plan.FamilyLinux {
		if err := e.canonicalizeLinuxBundles(ctx, triple, meta, out); err != nil {
			return nil, err
		}
	}

	var records []manifest.Record
	for _, f := range out.Files {
		rel, err := run.Place(triple, f)
		if err != nil {
			return nil, err
		}
		digest, _, err := hash.DigestFile(run.ArtifactPath(rel))
		if err != nil {
			return nil, err
		}
		records = append(records, manifest.Record{
			Package:         pkg,
			Target:          triple,
			Bin:             filepath.Base(f),
			BinPath:         rel,
			SHA256:          digest,
			Crate:           meta.Name,
			Version:         meta.Version,
			CrateLockSHA256: lockHash,
			RustDigest:      image,
		})
	}
	return records, nil
}

// canonicalizeLinuxBundles rewrites the deb, rpm, and AppImage outputs in
// place. The rpm is rebuilt from the canonicalized deb payload tree, so the
// rpm step depends on the deb step by name.
func (e *Executor) canonicalizeLinuxBundles(ctx context.Context, triple string, meta CrateMeta, out BundleOutput) error {
	byExt := make(map[string]string, len(out.Files))
	for _, f := range out.Files {
		byExt[strings.ToLower(filepath.Ext(f))] = f
	}

	treeDir := filepath.Join(filepath.Dir(byExt[".deb"]), "payload-tree")
	var steps []canonical.Step

	if debPath, ok := byExt[".deb"]; ok {
		steps = append(steps, canonical.Step{
			Name: "deb",
			Run: func(ctx context.Context) error {
				if err := canonical.CanonicalizeDeb(debPath); err != nil {
					return err
				}
				return canonical.DebDataTree(debPath, treeDir)
			},
		})
	}
	if rpmPath, ok := byExt[".rpm"]; ok {
		if _, hasDeb := byExt[".deb"]; !hasDeb {
			return &canonical.CanonicalizationError{
				Triple: triple, Step: "rpm",
				Err: fmt.Errorf("rpm rebuild needs the deb payload tree but no deb was produced"),
			}
		}
		steps = append(steps, canonical.Step{
			Name:     "rpm",
			Requires: []string{"deb"},
			Run: func(ctx context.Context) error {
				spec := canonical.RPMSpec{
					Name:    meta.Name,
					Version: meta.Version,
					Release: "1",
					Summary: meta.Name + " desktop application",
					Arch:    rpmArch(triple),
				}
				return canonical.RebuildRPM(ctx, e.Runner, spec, treeDir, rpmPath)
			},
		})
	}
	if appImagePath, ok := byExt[".appimage"]; ok {
		steps = append(steps, canonical.Step{
			Name: "appimage",
			Run: func(ctx context.Context) error {
				return canonical.CanonicalizeAppImage(ctx, e.Runner, appImagePath, out.AppDir)
			},
		})
	}

	return canonical.RunSteps(ctx, triple, steps, canonical.Options{Verbose: e.Verbose, Logf: e.Logf})
}

func rpmArch(triple string) string {
	arch, _, _ := strings.Cut(triple, "-")
	return arch
}
