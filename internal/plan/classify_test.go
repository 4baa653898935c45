package plan

import "testing"

func TestClassifyKnownTriples(t *testing.T) {
	cases := []struct {
		triple string
		want   Family
	}{
		{TripleLinuxX64, FamilyLinux},
		{TripleLinuxArm64, FamilyLinux},
		{TripleWindowsX64, FamilyWindows},
		{TripleMacX64, FamilyMacX64},
		{TripleMacArm64, FamilyMacArm64},
	}
	for _, c := range cases {
		fam, err := Classify(c.triple)
		if err != nil {
			t.Fatalf("Classify(%s): %v", c.triple, err)
		}
		if fam != c.want {
			t.Fatalf("Classify(%s) = %s, want %s", c.triple, fam, c.want)
		}
	}
}

func TestClassifyUnknownTripleFails(t *testing.T) {
	if _, err := Classify("riscv64gc-unknown-linux-gnu"); err == nil {
		t.Fatal("expected error for unclassified triple")
	}
}

func TestHostOnlyFamilies(t *testing.T) {
	for _, fam := range []Family{FamilyMacX64, FamilyMacArm64} {
		if !fam.HostOnly() {
			t.Fatalf("%s should be host-only", fam)
		}
	}
	for _, fam := range []Family{FamilyLinux, FamilyWindows} {
		if fam.HostOnly() {
			t.Fatalf("%s should allow container fallback", fam)
		}
	}
}

func TestPackagePolicySkips(t *testing.T) {
	if !SkipOn("secluso-raspberry-camera-hub", TripleLinuxX64) {
		t.Fatal("hub package should skip x86_64")
	}
	if SkipOn("secluso-raspberry-camera-hub", TripleLinuxArm64) {
		t.Fatal("hub package should build on aarch64")
	}
	if SkipOn("secluso-server", TripleLinuxX64) {
		t.Fatal("server has no triple restriction")
	}
}

func TestPolicyForDefaults(t *testing.T) {
	p := PolicyFor("secluso-server")
	if p.Crate != "secluso-server" || p.Bin != "secluso-server" {
		t.Fatalf("defaults not filled: %+v", p)
	}
	hub := PolicyFor("secluso-raspberry-camera-hub")
	if hub.Crate != "secluso-camera-hub" {
		t.Fatalf("hub crate rename missing: %+v", hub)
	}
	if hub.Bin != "secluso-raspberry-camera-hub" {
		t.Fatalf("hub bin default wrong: %+v", hub)
	}
}
