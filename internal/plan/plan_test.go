package plan

import (
	"errors"
	"testing"
)

func TestResolveServerServer(t *testing.T) {
	p, err := Resolve("server", "server")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Triples) != 1 || p.Triples[0] != TripleLinuxX64 {
		t.Fatalf("unexpected triples %v", p.Triples)
	}
	if len(p.Packages) != 1 || p.Packages[0] != "secluso-server" {
		t.Fatalf("unexpected packages %v", p.Packages)
	}
	if p.Kind != KindBinary {
		t.Fatalf("unexpected kind %s", p.Kind)
	}
	if p.RequiresContainerFallback {
		t.Fatal("binary plan should not require container fallback")
	}
}

func TestResolveUnknownPair(t *testing.T) {
	cases := []struct{ target, profile string }{
		{"server", "nope"},
		{"nope", "server"},
		{"", ""},
	}
	for _, c := range cases {
		_, err := Resolve(c.target, c.profile)
		var pe *PlanError
		if !errors.As(err, &pe) {
			t.Fatalf("Resolve(%q,%q): expected PlanError, got %v", c.target, c.profile, err)
		}
		if pe.Target != c.target || pe.Profile != c.profile {
			t.Fatalf("PlanError names wrong pair: %+v", pe)
		}
	}
}

func TestResolveDesktopRequiresFallback(t *testing.T) {
	p, err := Resolve("app", "desktop")
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindDesktopBundle {
		t.Fatalf("unexpected kind %s", p.Kind)
	}
	// Windows and Linux triples are in the plan, so the run needs the
	// pinned bundling container available.
	if !p.RequiresContainerFallback {
		t.Fatal("expected RequiresContainerFallback for app/desktop")
	}
}

func TestResolveCopiesAreIndependent(t *testing.T) {
	a, err := Resolve("server", "release")
	if err != nil {
		t.Fatal(err)
	}
	a.Triples[0] = "mutated"
	b, err := Resolve("server", "release")
	if err != nil {
		t.Fatal(err)
	}
	if b.Triples[0] == "mutated" {
		t.Fatal("Resolve returned shared slice")
	}
}
