// Package compare establishes whether two independently produced build runs
// are reproductions of each other. It trusts neither manifest: every file
// hash is re-derived from disk before the cross-run assertion is made. Both
// run directories are consumed strictly read-only, so auditors can point it
// at read-only mounts without any build tooling installed.
package compare

import (
	"fmt"
	"sort"

	"github.com/secluso/release-tools/internal/hash"
	"github.com/secluso/release-tools/internal/manifest"
	"github.com/secluso/release-tools/internal/rundir"
)

// Run compares two run directories and produces an itemized report. Keys are
// evaluated layer by layer; a key stops at its first failing layer but every
// key is always evaluated, there is no global short-circuit.
func Run(pathA, pathB string) Report {
	r := Report{Passed: true, ExitCode: ExitPass, RunA: pathA, RunB: pathB}

	dirA, keysA, err := loadRun(pathA)
	if err != nil {
		return r.structuralFailure(err.Error())
	}
	dirB, keysB, err := loadRun(pathB)
	if err != nil {
		return r.structuralFailure(err.Error())
	}

	// The run with fewer keys is "small"; every small key must exist in
	// large. Extra large-only keys are reported, never failed.
	small, smallDir, large, largeDir := keysA, dirA, keysB, dirB
	r.SmallRun = pathA
	if len(keysB) < len(keysA) {
		small, smallDir, large, largeDir = keysB, dirB, keysA, dirA
		r.SmallRun = pathB
	}
	r.KeyCount = len(small)

	missing := make([]string, 0)
	for k := range small {
		if _, ok := large[k]; !ok {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		r.MissingKeys = missing
		return r.structuralFailure(fmt.Sprintf("%d key(s) present in the smaller run but absent from the larger run", len(missing)))
	}

	ordered := sortedKeys(small)
	for _, k := range ordered {
		v := compareKey(k, small[k], smallDir, large[k], largeDir)
		r.Verdicts = append(r.Verdicts, v)
		if v.Status != StatusOK {
			r.Passed = false
			r.Violations = append(r.Violations, fmt.Sprintf("%s: %s at layer %s: %s", k, v.Status, v.Layer, v.Detail))
		}
	}

	extra := make([]string, 0)
	for k := range large {
		if _, ok := small[k]; !ok {
			extra = append(extra, k.String())
		}
	}
	sort.Strings(extra)
	r.ExtraKeys = extra

	if !r.Passed {
		r.ExitCode = ExitCompareFail
	}
	return r
}

func loadRun(path string) (*rundir.RunDir, map[manifest.Key]manifest.Record, error) {
	dir, err := rundir.Open(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := dir.Manifest()
	if err != nil {
		return nil, nil, err
	}
	keys, err := m.ByKey()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return dir, keys, nil
}

// compareKey evaluates the verification layers in order and stops at the
// first divergence. File I/O happens only at the manifest-hash layer, so a
// metadata mismatch never touches artifact bytes.
func compareKey(k manifest.Key, a manifest.Record, dirA *rundir.RunDir, b manifest.Record, dirB *rundir.RunDir) KeyVerdict {
	v := KeyVerdict{Package: k.Package, Target: k.Target, Bin: k.Bin, Status: StatusOK}

	// (a) same crate and version on both sides.
	if a.Crate != b.Crate || a.Version != b.Version {
		v.Status = StatusDiffMetadata
		v.Layer = LayerSource
		v.Detail = fmt.Sprintf("crate/version %s@%s vs %s@%s", a.Crate, a.Version, b.Crate, b.Version)
		return v
	}

	// (b) dependency lock hash present and equal. An absent lock hash makes
	// the key ineligible for hash-level comparison.
	if a.CrateLockSHA256 == "" || b.CrateLockSHA256 == "" {
		v.Status = StatusDiffMetadata
		v.Layer = LayerLock
		v.Detail = "crate_lock_sha256 empty on at least one side"
		return v
	}
	if a.CrateLockSHA256 != b.CrateLockSHA256 {
		v.Status = StatusDiffMetadata
		v.Layer = LayerLock
		v.Detail = fmt.Sprintf("crate_lock_sha256 %s vs %s", a.CrateLockSHA256, b.CrateLockSHA256)
		return v
	}

	// (c) toolchain identity present and equal.
	if a.RustDigest == "" || b.RustDigest == "" {
		v.Status = StatusDiffMetadata
		v.Layer = LayerToolchain
		v.Detail = "rust_digest empty on at least one side"
		return v
	}
	if a.RustDigest != b.RustDigest {
		v.Status = StatusDiffMetadata
		v.Layer = LayerToolchain
		v.Detail = fmt.Sprintf("rust_digest %s vs %s", a.RustDigest, b.RustDigest)
		return v
	}

	// (d) each side's on-disk bytes must match that side's declared hash.
	// A mismatch here means the manifest lied, which is a different finding
	// than two honest builds diverging.
	realA, okA := diskDigest(&v, dirA, a)
	if !okA {
		return v
	}
	realB, okB := diskDigest(&v, dirB, b)
	if !okB {
		return v
	}

	// (e) the actual reproducibility assertion.
	if realA != realB {
		v.Status = StatusCrossRunHash
		v.Layer = LayerCrossRun
		v.Detail = fmt.Sprintf("recomputed %s vs %s", realA, realB)
		return v
	}
	return v
}

func diskDigest(v *KeyVerdict, dir *rundir.RunDir, rec manifest.Record) (string, bool) {
	path := dir.ArtifactPath(rec.BinPath)
	if !hash.FileExists(path) {
		v.Status = StatusMissingFile
		v.Layer = LayerManifestHash
		v.Detail = fmt.Sprintf("artifact missing on disk: %s (%s)", rec.BinPath, dir.Root)
		return "", false
	}
	real, _, err := hash.DigestFile(path)
	if err != nil {
		v.Status = StatusMissingFile
		v.Layer = LayerManifestHash
		v.Detail = fmt.Sprintf("cannot hash %s: %v", rec.BinPath, err)
		return "", false
	}
	if real != rec.SHA256 {
		v.Status = StatusManifestHash
		v.Layer = LayerManifestHash
		v.Detail = fmt.Sprintf("%s declares %s but disk has %s (%s)", rec.BinPath, rec.SHA256, real, dir.Root)
		return "", false
	}
	return real, true
}

func (r Report) structuralFailure(msg string) Report {
	r.Passed = false
	r.ExitCode = ExitCompareStructure
	r.Violations = append(r.Violations, msg)
	return r
}

func sortedKeys(m map[manifest.Key]manifest.Record) []manifest.Key {
	keys := make([]manifest.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		return a.Bin < b.Bin
	})
	return keys
}
