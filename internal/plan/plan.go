// Package plan resolves a (target, profile) request into a concrete build
// plan: which triples to build, which packages, and whether the run may fall
// back to a pinned container for desktop bundling.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindBinary        Kind = "binary"
	KindDesktopBundle Kind = "desktop_bundle"
)

// BuildPlan is created once per invocation and never mutated afterwards.
type BuildPlan struct {
	Target                    string
	Profile                   string
	Triples                   []string
	Packages                  []string
	Kind                      Kind
	RequiresContainerFallback bool
}

type planEntry struct {
	Triples  []string
	Packages []string
	Kind     Kind
}

type planKey struct {
	Target  string
	Profile string
}

// The closed plan table. Triple and package order here is the canonical
// build order; the manifest writer re-sorts records anyway, so this order
// never reaches serialized output.
var planTable = map[planKey]planEntry{
	{Target: "server", Profile: "server"}: {
		Triples:  []string{TripleLinuxX64},
		Packages: []string{"secluso-server"},
		Kind:     KindBinary,
	},
	{Target: "server", Profile: "release"}: {
		Triples:  []string{TripleLinuxX64, TripleLinuxArm64},
		Packages: []string{"secluso-server", "secluso-config-tool"},
		Kind:     KindBinary,
	},
	{Target: "camera", Profile: "release"}: {
		Triples:  []string{TripleLinuxArm64, TripleLinuxX64},
		Packages: []string{"secluso-raspberry-camera-hub", "secluso-config-tool"},
		Kind:     KindBinary,
	},
	{Target: "app", Profile: "desktop"}: {
		Triples:  []string{TripleWindowsX64, TripleMacX64, TripleMacArm64, TripleLinuxX64},
		Packages: []string{"secluso-app"},
		Kind:     KindDesktopBundle,
	},
}

// Resolve maps (target, profile) to a BuildPlan or fails with a PlanError
// before any build work starts.
func Resolve(target, profile string) (BuildPlan, error) {
	entry, ok := planTable[planKey{Target: target, Profile: profile}]
	if !ok {
		return BuildPlan{}, &PlanError{Target: target, Profile: profile}
	}

	p := BuildPlan{
		Target:   target,
		Profile:  profile,
		Triples:  append([]string(nil), entry.Triples...),
		Packages: append([]string(nil), entry.Packages...),
		Kind:     entry.Kind,
	}

	if p.Kind == KindDesktopBundle {
		for _, triple := range p.Triples {
			fam, err := Classify(triple)
			if err != nil {
				return BuildPlan{}, err
			}
			if !fam.HostOnly() {
				p.RequiresContainerFallback = true
			}
		}
	}
	return p, nil
}

// Overrides is the optional release.yaml shape. Only the fields below may be
// overridden; the plan table itself stays closed.
type Overrides struct {
	ToolchainDigests map[string]string `yaml:"toolchain_digests"`
	WorkspaceRoot    string            `yaml:"workspace_root"`
}

func LoadOverrides(path string) (Overrides, error) {
	var o Overrides
	raw, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("read overrides %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return Overrides{}, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	return o, nil
}
