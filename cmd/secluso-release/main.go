package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/secluso/release-tools/internal/buildexec"
	"github.com/secluso/release-tools/internal/canonical"
	"github.com/secluso/release-tools/internal/compare"
	"github.com/secluso/release-tools/internal/execx"
	"github.com/secluso/release-tools/internal/manifest"
	"github.com/secluso/release-tools/internal/plan"
	"github.com/secluso/release-tools/internal/report"
	"github.com/secluso/release-tools/internal/toolchain"
	"github.com/spf13/cobra"
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps typed build failures to the shared exit-code table so
// release scripts can dispatch without parsing error text.
func exitCodeFor(err error) int {
	var planErr *plan.PlanError
	var digestErr *toolchain.MissingDigestError
	var artifactErr *buildexec.MissingArtifactError
	var canonErr *canonical.CanonicalizationError
	var hostErr *buildexec.HostCapabilityError
	switch {
	case errors.As(err, &planErr):
		return compare.ExitPlan
	case errors.As(err, &digestErr):
		return compare.ExitMissingDigest
	case errors.As(err, &artifactErr):
		return compare.ExitMissingArtifact
	case errors.As(err, &canonErr):
		return compare.ExitCanonicalization
	case errors.As(err, &hostErr):
		return compare.ExitHostCapability
	default:
		return 1
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "secluso-release",
		Short: "Reproducible release builds and run comparison",
	}
	root.AddCommand(newBuildCommand())
	root.AddCommand(newCompareCommand())
	root.AddCommand(newPlanCommand())
	root.AddCommand(newDigestsCommand())
	root.AddCommand(newManifestCommand())
	return root
}

func loadRegistry(configPath string) (*toolchain.Registry, string, error) {
	workspace := "."
	var digests map[string]string
	if configPath != "" {
		o, err := plan.LoadOverrides(configPath)
		if err != nil {
			return nil, "", err
		}
		digests = o.ToolchainDigests
		if o.WorkspaceRoot != "" {
			workspace = o.WorkspaceRoot
		}
	}
	return toolchain.NewRegistry(digests), workspace, nil
}

func newBuildCommand() *cobra.Command {
	var target, profile, out, configPath string
	var testReproduce, smoke, verbose bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a release plan into a sealed run directory",
		RunE: func(c *cobra.Command, _ []string) error {
			if target == "" || profile == "" {
				return fmt.Errorf("--target and --profile are required")
			}
			p, err := plan.Resolve(target, profile)
			if err != nil {
				return err
			}
			registry, workspace, err := loadRegistry(configPath)
			if err != nil {
				return err
			}

			runner := execx.OSRunner{}
			ex := &buildexec.Executor{
				Runner:   runner,
				Registry: registry,
				Bundler: &buildexec.TauriBundler{
					Runner:    runner,
					Workspace: workspace,
					Image:     registryImageOrEmpty(registry, plan.TripleLinuxX64),
				},
				Workspace: workspace,
				Smoke:     smoke,
				Verbose:   verbose,
			}
			if verbose {
				ex.Logf = func(format string, args ...any) {
					fmt.Fprintf(os.Stderr, format+"\n", args...)
				}
			}

			ctx := c.Context()
			if !testReproduce {
				m, err := ex.Execute(ctx, p, out)
				if err != nil {
					return err
				}
				fmt.Println(filepath.Join(out, manifest.FileName))
				fp, err := m.Fingerprint()
				if err != nil {
					return err
				}
				fmt.Println("fingerprint:", fp)
				return nil
			}

			// Reproducibility self-test: run the same plan twice into
			// sibling directories and compare the results in-process.
			runA, runB := out+"-a", out+"-b"
			if _, err := ex.Execute(ctx, p, runA); err != nil {
				return err
			}
			if _, err := ex.Execute(ctx, p, runB); err != nil {
				return err
			}
			r := compare.Run(runA, runB)
			fmt.Print(report.BuildMarkdown(r))
			if !r.Passed {
				return cliError{code: r.ExitCode, err: fmt.Errorf("reproducibility self-test failed")}
			}
			fmt.Println("reproducibility self-test passed")
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "release target (server|camera|app)")
	cmd.Flags().StringVar(&profile, "profile", "", "release profile (server|release|desktop)")
	cmd.Flags().StringVar(&out, "out", "release-run", "run directory")
	cmd.Flags().StringVar(&configPath, "config", "", "release.yaml overrides path")
	cmd.Flags().BoolVar(&testReproduce, "test-reproduce", false, "build twice and compare the runs")
	cmd.Flags().BoolVar(&smoke, "smoke-check", false, "run advisory --version checks on produced binaries")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log build and canonicalization steps")
	return cmd
}

func registryImageOrEmpty(r *toolchain.Registry, triple string) string {
	img, err := r.Lookup(triple)
	if err != nil {
		return ""
	}
	return img
}

func newCompareCommand() *cobra.Command {
	var format, outPath string
	cmd := &cobra.Command{
		Use:   "compare <run-a> <run-b>",
		Short: "Compare two sealed run directories for reproducibility",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			r := compare.Run(args[0], args[1])

			switch format {
			case "json":
				if outPath == "" {
					outPath = "compare.json"
				}
				if err := report.WriteJSON(outPath, r); err != nil {
					return err
				}
				fmt.Println(outPath)
			case "md":
				if outPath == "" {
					fmt.Print(report.BuildMarkdown(r))
				} else {
					if err := report.WriteMarkdown(outPath, r); err != nil {
						return err
					}
					fmt.Println(outPath)
				}
			default:
				return fmt.Errorf("unsupported format %s", format)
			}

			if !r.Passed {
				return cliError{code: r.ExitCode, err: fmt.Errorf("runs are not reproducible")}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "md", "output format (json|md)")
	cmd.Flags().StringVar(&outPath, "out", "", "report output path")
	return cmd
}

func newPlanCommand() *cobra.Command {
	var target, profile string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the resolved build plan for a target and profile",
		RunE: func(_ *cobra.Command, _ []string) error {
			if target == "" || profile == "" {
				return fmt.Errorf("--target and --profile are required")
			}
			p, err := plan.Resolve(target, profile)
			if err != nil {
				return err
			}
			fmt.Printf("target:   %s\n", p.Target)
			fmt.Printf("profile:  %s\n", p.Profile)
			fmt.Printf("kind:     %s\n", p.Kind)
			fmt.Printf("triples:  %s\n", strings.Join(p.Triples, ", "))
			fmt.Printf("packages: %s\n", strings.Join(p.Packages, ", "))
			for _, pkg := range p.Packages {
				for _, triple := range p.Triples {
					if plan.SkipOn(pkg, triple) {
						fmt.Printf("skipped:  %s on %s (package policy)\n", pkg, triple)
					}
				}
			}
			if p.RequiresContainerFallback {
				fmt.Println("note:     may fall back to containerized bundling")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "release target")
	cmd.Flags().StringVar(&profile, "profile", "", "release profile")
	return cmd
}

func newDigestsCommand() *cobra.Command {
	var configPath, target, profile string
	cmd := &cobra.Command{
		Use:   "digests",
		Short: "Show the pinned toolchain digest table",
		RunE: func(_ *cobra.Command, _ []string) error {
			registry, _, err := loadRegistry(configPath)
			if err != nil {
				return err
			}
			for _, e := range registry.Entries() {
				fmt.Printf("%-40s %s\n", e.Key, e.Digest)
			}
			// With a plan selected, also verify the table covers it.
			if target != "" || profile != "" {
				p, err := plan.Resolve(target, profile)
				if err != nil {
					return err
				}
				if err := registry.Validate(p.Triples); err != nil {
					return err
				}
				fmt.Printf("coverage ok for %s/%s\n", target, profile)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "release.yaml overrides path")
	cmd.Flags().StringVar(&target, "target", "", "verify digest coverage for this target")
	cmd.Flags().StringVar(&profile, "profile", "", "verify digest coverage for this profile")
	return cmd
}

func newManifestCommand() *cobra.Command {
	manifestCmd := &cobra.Command{Use: "manifest", Short: "Manifest operations"}
	validateCmd := &cobra.Command{
		Use:   "validate <run-dir-or-manifest>",
		Short: "Validate a manifest against the document schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := args[0]
			if filepath.Base(dir) == manifest.FileName {
				dir = filepath.Dir(dir)
			}
			m, err := manifest.Read(dir)
			if err != nil {
				return cliError{code: compare.ExitCompareStructure, err: err}
			}
			fp, err := m.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Printf("valid: %d artifacts, fingerprint %s\n", len(m.Artifacts), fp)
			return nil
		},
	}
	manifestCmd.AddCommand(validateCmd)
	return manifestCmd
}
