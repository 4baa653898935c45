// Package toolchain resolves each target triple to the immutable,
// digest-pinned image of the compiler toolchain that builds it. Digests are
// content identities, never floating tags, so a manifest entry pins the
// exact toolchain state a binary came from.
package toolchain

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// The pinned toolchain images per triple. Updated only when the release
// toolchain is rolled forward, together with the expected manifests.
var defaultDigests = map[string]string{
	"x86_64-unknown-linux-gnu":  "ghcr.io/secluso/rust-builder@sha256:4b3f0c2a9d4f1e8b7c6a5d4e3f2b1a0c9d8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a",
	"aarch64-unknown-linux-gnu": "ghcr.io/secluso/rust-builder@sha256:9c8b7a6d5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2d1e0f9a8b",
	"x86_64-pc-windows-msvc":    "ghcr.io/secluso/rust-builder@sha256:1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b",
	"x86_64-apple-darwin":       "ghcr.io/secluso/rust-builder@sha256:2f1e0d9c8b7a6f5e4d3c2b1a0f9e8d7c6b5a4f3e2d1c0b9a8f7e6d5c4b3a2f1e",
	"aarch64-apple-darwin":      "ghcr.io/secluso/rust-builder@sha256:7e6d5c4b3a2f1e0d9c8b7a6f5e4d3c2b1a0f9e8d7c6b5a4f3e2d1c0b9a8f7e6d",
}

const envPrefix = "RUST_DIGEST_"

// Registry maps triples to pinned toolchain digests. The zero value is not
// usable; construct with NewRegistry.
type Registry struct {
	digests map[string]string
}

// NewRegistry builds a registry from the compiled-in table, environment
// variables of the form RUST_DIGEST_<NORMALIZED_TRIPLE>, and explicit
// overrides, in increasing precedence.
func NewRegistry(overrides map[string]string) *Registry {
	r := &Registry{digests: make(map[string]string, len(defaultDigests))}
	for triple, digest := range defaultDigests {
		r.digests[NormalizeKey(triple)] = digest
	}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		r.digests[strings.TrimPrefix(name, envPrefix)] = value
	}
	for triple, digest := range overrides {
		if digest != "" {
			r.digests[NormalizeKey(triple)] = digest
		}
	}
	return r
}

// NormalizeKey converts a triple to its registry key form: uppercased, with
// dashes and dots collapsed to underscores. Matches the env-var naming the
// release scripts used.
func NormalizeKey(triple string) string {
	replaced := strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return '_'
		}
		return r
	}, triple)
	return strings.ToUpper(replaced)
}

// Lookup returns the pinned digest reference for triple.
func (r *Registry) Lookup(triple string) (string, error) {
	digest, ok := r.digests[NormalizeKey(triple)]
	if !ok {
		return "", &MissingDigestError{Triple: triple}
	}
	return digest, nil
}

// Entry is one registry row for display.
type Entry struct {
	Key    string
	Digest string
}

// Entries returns the registry contents sorted by key.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.digests))
	for k, d := range r.digests {
		out = append(out, Entry{Key: k, Digest: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Validate checks that every triple in the plan has a pinned digest. Run
// before any container or toolchain invocation so a gap never causes
// partial plan execution.
func (r *Registry) Validate(triples []string) error {
	missing := make([]string, 0)
	for _, triple := range triples {
		if _, ok := r.digests[NormalizeKey(triple)]; !ok {
			missing = append(missing, triple)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingDigestError{Triple: strings.Join(missing, ", ")}
	}
	return nil
}

// MissingDigestError is fatal and pre-flight: no build step runs when any
// required triple lacks a pinned toolchain identity.
type MissingDigestError struct {
	Triple string
}

func (e *MissingDigestError) Error() string {
	return fmt.Sprintf("no pinned toolchain digest for triple %s", e.Triple)
}
