// Package canonical rewrites Linux bundle formats so their bytes are a pure
// function of the staged input tree. The bundling toolchains embed build
// entropy (timestamps, traversal order, thread scheduling, container ids);
// each format-specific step strips it after a successful build and before
// final hashing.
package canonical

import (
	"context"
	"fmt"
	"time"
)

// RefInstant is the fixed reference instant all normalized timestamps are
// set to. Changing it changes every canonicalized artifact, so it moves only
// together with the pinned toolchain digests.
var RefInstant = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Step is one canonicalization unit for a triple's bundle. Requires names
// steps whose outputs this step consumes; the runner orders steps by these
// declared edges, never by slice order.
type Step struct {
	Name     string
	Requires []string
	Run      func(ctx context.Context) error
}

// Options controls diagnostic output. Normal runs emit nothing; verbose
// capture is strictly opt-in.
type Options struct {
	Verbose bool
	Logf    func(format string, args ...any)
}

func (o Options) logf(format string, args ...any) {
	if o.Verbose && o.Logf != nil {
		o.Logf(format, args...)
	}
}

// CanonicalizationError is fatal for one triple's bundle and isolated from
// sibling triples.
type CanonicalizationError struct {
	Triple string
	Step   string
	Err    error
}

func (e *CanonicalizationError) Error() string {
	return fmt.Sprintf("canonicalize %s for %s: %v", e.Step, e.Triple, e.Err)
}

func (e *CanonicalizationError) Unwrap() error { return e.Err }

// RunSteps executes steps in dependency order. Order among independent steps
// is their declaration order, kept stable so runs are reproducible. A missing
// or cyclic dependency is a programming error and fails immediately.
func RunSteps(ctx context.Context, triple string, steps []Step, opts Options) error {
	byName := make(map[string]*Step, len(steps))
	for i := range steps {
		s := &steps[i]
		if _, dup := byName[s.Name]; dup {
			return &CanonicalizationError{Triple: triple, Step: s.Name, Err: fmt.Errorf("duplicate step")}
		}
		byName[s.Name] = s
	}

	done := make(map[string]bool, len(steps))
	visiting := make(map[string]bool, len(steps))

	var visit func(s *Step) error
	visit = func(s *Step) error {
		if done[s.Name] {
			return nil
		}
		if visiting[s.Name] {
			return &CanonicalizationError{Triple: triple, Step: s.Name, Err: fmt.Errorf("dependency cycle")}
		}
		visiting[s.Name] = true
		for _, req := range s.Requires {
			dep, ok := byName[req]
			if !ok {
				return &CanonicalizationError{Triple: triple, Step: s.Name, Err: fmt.Errorf("unknown dependency %q", req)}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[s.Name] = false

		opts.logf("canonicalize: %s %s", triple, s.Name)
		if err := s.Run(ctx); err != nil {
			return &CanonicalizationError{Triple: triple, Step: s.Name, Err: err}
		}
		done[s.Name] = true
		return nil
	}

	for i := range steps {
		if err := visit(&steps[i]); err != nil {
			return err
		}
	}
	return nil
}
