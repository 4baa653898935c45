package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/secluso/release-tools/internal/hash"
)

const FileName = "manifest.json"

// Write serializes the manifest into <runDir>/manifest.json. The manifest is
// write-once: an existing file means the run directory is already sealed.
// Records are re-sorted first so execution order never leaks into the bytes.
func Write(runDir string, m Manifest) (string, error) {
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("refusing to write manifest: %w", err)
	}
	m.SortArtifacts()

	path := filepath.Join(runDir, FileName)
	if hash.FileExists(path) {
		return "", fmt.Errorf("manifest already written: %s", path)
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// Read loads and schema-validates <runDir>/manifest.json. Callers treat the
// result as a claim, not a fact: hashes are re-derived before being trusted.
func Read(runDir string) (Manifest, error) {
	path := filepath.Join(runDir, FileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	if err := ValidateSchema(raw); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if _, err := m.ByKey(); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Fingerprint hashes the artifact list in canonical JSON form. Two runs that
// produced identical artifacts fingerprint identically even though run_id
// and timestamp differ.
func (m *Manifest) Fingerprint() (string, error) {
	sorted := *m
	sorted.Artifacts = append([]Record(nil), m.Artifacts...)
	sorted.SortArtifacts()
	digest, _, err := hash.HashCanonicalJSON(sorted.Artifacts)
	if err != nil {
		return "", fmt.Errorf("fingerprint manifest: %w", err)
	}
	return digest, nil
}
