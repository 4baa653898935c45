// Package rundir manages the on-disk layout of one build run: a manifest at
// the root and an artifact tree keyed by triple. A run directory is sealed
// once its manifest exists; builders refuse to touch it afterwards and
// comparators never write into one at all.
package rundir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/secluso/release-tools/internal/hash"
	"github.com/secluso/release-tools/internal/manifest"
)

const artifactsDir = "artifacts"

type RunDir struct {
	Root string
}

// Create prepares a fresh run directory. An existing sealed directory is an
// error; a fresh or empty one is reused.
func Create(root string) (*RunDir, error) {
	r := &RunDir{Root: root}
	if r.Sealed() {
		return nil, fmt.Errorf("run directory already sealed: %s", root)
	}
	if err := os.MkdirAll(filepath.Join(root, artifactsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return r, nil
}

// Open wraps an existing run directory for read-only use.
func Open(root string) (*RunDir, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open run directory: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("run directory is not a directory: %s", root)
	}
	return &RunDir{Root: root}, nil
}

// Sealed reports whether the manifest has been written.
func (r *RunDir) Sealed() bool {
	return hash.FileExists(filepath.Join(r.Root, manifest.FileName))
}

// ArtifactPath resolves the absolute path for a relative bin_path like
// "artifacts/<triple>/<bin>".
func (r *RunDir) ArtifactPath(relPath string) string {
	return filepath.Join(r.Root, filepath.FromSlash(relPath))
}

// RelPath builds the canonical relative bin_path for a triple and file name.
func RelPath(triple, name string) string {
	return filepath.ToSlash(filepath.Join(artifactsDir, triple, name))
}

// Place copies src into the artifact tree under triple and returns the
// relative bin_path. The run must not be sealed.
func (r *RunDir) Place(triple, src string) (string, error) {
	return r.PlaceAs(triple, src, filepath.Base(src))
}

// PlaceAs is Place with an explicit destination name, for packages whose
// distributed binary name differs from the file the build produced.
func (r *RunDir) PlaceAs(triple, src, name string) (string, error) {
	if r.Sealed() {
		return "", fmt.Errorf("run directory sealed, refusing to add artifacts: %s", r.Root)
	}
	rel := RelPath(triple, name)
	dst := r.ArtifactPath(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	raw, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", src, err)
	}
	if err := os.WriteFile(dst, raw, 0o755); err != nil {
		return "", fmt.Errorf("place artifact %s: %w", dst, err)
	}
	return rel, nil
}

// Seal writes the manifest, making the directory logically immutable.
func (r *RunDir) Seal(m manifest.Manifest) (string, error) {
	return manifest.Write(r.Root, m)
}

// Manifest reads the sealed manifest back.
func (r *RunDir) Manifest() (manifest.Manifest, error) {
	return manifest.Read(r.Root)
}
