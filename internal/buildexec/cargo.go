package buildexec

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/secluso/release-tools/internal/execx"
	"github.com/secluso/release-tools/internal/hash"
)

// CrateMeta is the resolved source identity of one workspace crate.
type CrateMeta struct {
	Name    string
	Version string
}

type cargoMetadata struct {
	Packages []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"packages"`
}

// ResolveCrate reads the workspace metadata and returns the crate's declared
// name and version.
func ResolveCrate(ctx context.Context, runner execx.CommandRunner, workspace, crate string) (CrateMeta, error) {
	out, err := runner.Run(ctx, workspace,
		[]string{"cargo", "metadata", "--no-deps", "--format-version", "1"}, nil)
	if err != nil {
		return CrateMeta{}, fmt.Errorf("cargo metadata: %w", err)
	}
	var meta cargoMetadata
	if err := json.Unmarshal([]byte(out), &meta); err != nil {
		return CrateMeta{}, fmt.Errorf("parse cargo metadata: %w", err)
	}
	for _, p := range meta.Packages {
		if p.Name == crate {
			return CrateMeta{Name: p.Name, Version: p.Version}, nil
		}
	}
	return CrateMeta{}, fmt.Errorf("crate %s not found in workspace %s", crate, workspace)
}

// LockHash digests the workspace dependency lockfile. An absent lockfile is
// an error: a build without a pinned dependency set is not comparable.
func LockHash(workspace string) (string, error) {
	path := filepath.Join(workspace, "Cargo.lock")
	digest, _, err := hash.DigestFile(path)
	if err != nil {
		return "", fmt.Errorf("hash dependency lockfile: %w", err)
	}
	return digest, nil
}
