package buildexec

import "fmt"

// MissingArtifactError means a toolchain invocation reported success but the
// expected output file is absent. The build contract is violated; the run
// aborts without retrying.
type MissingArtifactError struct {
	Package string
	Triple  string
	Bin     string
	Path    string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("build reported success but %s/%s/%s is missing at %s",
		e.Package, e.Triple, e.Bin, e.Path)
}

// HostCapabilityError means a host-only triple cannot be bundled natively.
// Falling back to a container would silently change what gets shipped, so
// this is fatal and names the triple.
type HostCapabilityError struct {
	Triple string
	Wanted []string
}

func (e *HostCapabilityError) Error() string {
	return fmt.Sprintf("host cannot natively bundle %s (acceptable formats: %v) and container fallback is forbidden for this platform family",
		e.Triple, e.Wanted)
}
