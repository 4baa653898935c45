package plan

// PackagePolicy holds the per-package exceptions that used to live as inline
// special cases in the release scripts: device-specific packages that only
// make sense on one platform class, and packages whose distributed binary
// name differs from the crate that builds it.
type PackagePolicy struct {
	// Crate is the cargo package that builds this distributed package. Empty
	// means the package name and crate name coincide.
	Crate string
	// Bin is the produced binary name. Empty means it equals the package name.
	Bin string
	// OnlyTriples restricts the package to the listed triples. Building for
	// any other triple is skipped with a notice, never an error.
	OnlyTriples []string
}

var packagePolicies = map[string]PackagePolicy{
	// The Raspberry Pi hub binary is built from the shared camera-hub crate
	// and only ships for the Pi's architecture.
	"secluso-raspberry-camera-hub": {
		Crate:       "secluso-camera-hub",
		OnlyTriples: []string{TripleLinuxArm64},
	},
}

// PolicyFor returns the policy for pkg with defaults filled in.
func PolicyFor(pkg string) PackagePolicy {
	p := packagePolicies[pkg]
	if p.Crate == "" {
		p.Crate = pkg
	}
	if p.Bin == "" {
		p.Bin = pkg
	}
	return p
}

// SkipOn reports whether pkg is excluded from triple by policy.
func SkipOn(pkg, triple string) bool {
	p := packagePolicies[pkg]
	if len(p.OnlyTriples) == 0 {
		return false
	}
	for _, t := range p.OnlyTriples {
		if t == triple {
			return false
		}
	}
	return true
}
