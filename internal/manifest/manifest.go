// Package manifest defines the provenance record one build run produces and
// the read/write paths for it. The document shape is consumed verbatim by
// the updater, so the JSON keys here are load-bearing.
package manifest

import (
	"fmt"
	"sort"
)

// Record is one produced artifact: what was built, from which crate state,
// with which toolchain, and what the bytes hashed to. The (Package, Target,
// Bin) triple is the record's key and is unique within a manifest.
type Record struct {
	Package         string `json:"package"`
	Target          string `json:"target"`
	Bin             string `json:"bin"`
	BinPath         string `json:"bin_path"`
	SHA256          string `json:"sha256"`
	Crate           string `json:"crate"`
	Version         string `json:"version"`
	CrateLockSHA256 string `json:"crate_lock_sha256"`
	RustDigest      string `json:"rust_digest"`
}

// Key identifies a record within and across manifests.
type Key struct {
	Package string
	Target  string
	Bin     string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Package, k.Target, k.Bin)
}

func (r Record) Key() Key {
	return Key{Package: r.Package, Target: r.Target, Bin: r.Bin}
}

type BuildInfo struct {
	Target    string `json:"target"`
	Profile   string `json:"profile"`
	RunID     string `json:"run_id"`
	Timestamp string `json:"timestamp"`
}

type Manifest struct {
	Build     BuildInfo `json:"build"`
	Artifacts []Record  `json:"artifacts"`
}

// SortArtifacts orders records by (target, package, bin) so the serialized
// manifest is identical no matter what order the builds executed in.
func (m *Manifest) SortArtifacts() {
	sort.Slice(m.Artifacts, func(i, j int) bool {
		a, b := m.Artifacts[i], m.Artifacts[j]
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		return a.Bin < b.Bin
	})
}

// ByKey returns the artifact map keyed by (package, target, bin), failing on
// duplicate keys.
func (m *Manifest) ByKey() (map[Key]Record, error) {
	out := make(map[Key]Record, len(m.Artifacts))
	for _, r := range m.Artifacts {
		k := r.Key()
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("duplicate artifact key %s", k)
		}
		out[k] = r
	}
	return out, nil
}

// Validate checks structural invariants the writer enforces: unique keys and
// no empty mandatory fields.
func (m *Manifest) Validate() error {
	if m.Build.Target == "" || m.Build.Profile == "" || m.Build.RunID == "" || m.Build.Timestamp == "" {
		return fmt.Errorf("manifest build block has empty fields: %+v", m.Build)
	}
	if _, err := m.ByKey(); err != nil {
		return err
	}
	for _, r := range m.Artifacts {
		switch "" {
		case r.Package, r.Target, r.Bin, r.BinPath, r.SHA256, r.Crate, r.Version:
			return fmt.Errorf("artifact %s has empty mandatory fields", r.Key())
		}
	}
	return nil
}
