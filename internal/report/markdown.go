package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/secluso/release-tools/internal/compare"
)

func BuildMarkdown(r compare.Report) string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	var b strings.Builder
	b.WriteString("# Release Reproducibility Report\n\n")
	b.WriteString(fmt.Sprintf("- Status: **%s**\n", status))
	b.WriteString(fmt.Sprintf("- Exit Code: `%d`\n", r.ExitCode))
	b.WriteString(fmt.Sprintf("- Run A: `%s`\n", r.RunA))
	b.WriteString(fmt.Sprintf("- Run B: `%s`\n", r.RunB))
	b.WriteString(fmt.Sprintf("- Compared Keys: `%d`\n\n", r.KeyCount))

	if len(r.Verdicts) > 0 {
		b.WriteString("## Artifacts\n\n")
		b.WriteString("| Package | Target | Bin | Status | Layer | Detail |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, v := range r.Verdicts {
			layer := v.Layer
			if layer == "" {
				layer = "-"
			}
			detail := v.Detail
			if detail == "" {
				detail = "ok"
			}
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
				v.Package, v.Target, v.Bin, v.Status, layer, strings.ReplaceAll(detail, "|", "\\|")))
		}
	}

	if len(r.MissingKeys) > 0 {
		b.WriteString("\n## Missing Keys\n\n")
		for _, k := range r.MissingKeys {
			b.WriteString("- " + k + "\n")
		}
	}

	if len(r.ExtraKeys) > 0 {
		b.WriteString("\n## Extra Keys (larger run only, informational)\n\n")
		for _, k := range r.ExtraKeys {
			b.WriteString("- " + k + "\n")
		}
	}

	if len(r.Violations) > 0 {
		b.WriteString("\n## Violations\n\n")
		for _, v := range r.Violations {
			b.WriteString("- " + v + "\n")
		}
	}

	return b.String()
}

func WriteMarkdown(path string, r compare.Report) error {
	return os.WriteFile(path, []byte(BuildMarkdown(r)), 0o644)
}
