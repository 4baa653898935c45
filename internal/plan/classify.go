package plan

import "fmt"

// Known triples. Every triple the plan table mentions must classify; new
// triples are added here, not matched by substring anywhere else.
const (
	TripleLinuxX64   = "x86_64-unknown-linux-gnu"
	TripleLinuxArm64 = "aarch64-unknown-linux-gnu"
	TripleWindowsX64 = "x86_64-pc-windows-msvc"
	TripleMacX64     = "x86_64-apple-darwin"
	TripleMacArm64   = "aarch64-apple-darwin"
)

type Family int

const (
	FamilyUnknown Family = iota
	FamilyLinux
	FamilyWindows
	FamilyMacX64
	FamilyMacArm64
)

func (f Family) String() string {
	switch f {
	case FamilyLinux:
		return "linux"
	case FamilyWindows:
		return "windows"
	case FamilyMacX64:
		return "macos-x64"
	case FamilyMacArm64:
		return "macos-arm64"
	default:
		return "unknown"
	}
}

var familyByTriple = map[string]Family{
	TripleLinuxX64:   FamilyLinux,
	TripleLinuxArm64: FamilyLinux,
	TripleWindowsX64: FamilyWindows,
	TripleMacX64:     FamilyMacX64,
	TripleMacArm64:   FamilyMacArm64,
}

// Classify maps a triple to its platform family. Unknown triples are an
// error so a new triple cannot silently fall through a packaging decision.
func Classify(triple string) (Family, error) {
	fam, ok := familyByTriple[triple]
	if !ok {
		return FamilyUnknown, fmt.Errorf("unclassified triple %q", triple)
	}
	return fam, nil
}

// HostOnly reports whether container fallback is forbidden for this family.
// The macOS families must bundle natively and never fall back.
func (f Family) HostOnly() bool {
	return f == FamilyMacX64 || f == FamilyMacArm64
}
