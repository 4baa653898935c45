package compare

// Process exit codes. Build-side failures and comparison outcomes share one
// table so scripts driving the CLI can dispatch on them.
const (
	ExitPass             = 0
	ExitPlan             = 10
	ExitMissingDigest    = 11
	ExitMissingArtifact  = 12
	ExitCanonicalization = 13
	ExitHostCapability   = 14
	ExitCompareFail      = 15
	ExitCompareStructure = 16
)

// Status is the per-key comparison verdict.
type Status string

const (
	StatusOK           Status = "OK"
	StatusDiffMetadata Status = "DIFF_METADATA"
	StatusMissingFile  Status = "FAIL_MISSING_FILE"
	StatusManifestHash Status = "FAIL_MANIFEST_HASH"
	StatusCrossRunHash Status = "FAIL_CROSS_RUN_HASH"
)

// Layer names identify where a key's evaluation stopped.
const (
	LayerSource       = "source"
	LayerLock         = "lock"
	LayerToolchain    = "toolchain"
	LayerManifestHash = "manifest_hash"
	LayerCrossRun     = "cross_run"
)

// KeyVerdict is the outcome for one artifact key shared by both runs.
type KeyVerdict struct {
	Package string `json:"package"`
	Target  string `json:"target"`
	Bin     string `json:"bin"`
	Status  Status `json:"status"`
	Layer   string `json:"layer,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Report is the full comparison result for two run directories.
type Report struct {
	Passed      bool         `json:"passed"`
	ExitCode    int          `json:"exit_code"`
	RunA        string       `json:"run_a"`
	RunB        string       `json:"run_b"`
	SmallRun    string       `json:"small_run"`
	KeyCount    int          `json:"key_count"`
	Verdicts    []KeyVerdict `json:"verdicts"`
	MissingKeys []string     `json:"missing_keys,omitempty"`
	ExtraKeys   []string     `json:"extra_keys,omitempty"`
	Violations  []string     `json:"violations,omitempty"`
}
