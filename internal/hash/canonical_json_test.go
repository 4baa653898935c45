package hash

import (
	"testing"
)

func TestCanonicalJSONSortsKeys(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"b": 1, "a": []any{true, nil}, "c": "x"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":[true,null],"b":1,"c":"x"}`
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
}

func TestCanonicalJSONStructsAndMapsAgree(t *testing.T) {
	type rec struct {
		Package string `json:"package"`
		SHA256  string `json:"sha256"`
	}
	fromStruct, err := CanonicalJSON(rec{Package: "secluso-server", SHA256: "aa"})
	if err != nil {
		t.Fatal(err)
	}
	fromMap, err := CanonicalJSON(map[string]any{"sha256": "aa", "package": "secluso-server"})
	if err != nil {
		t.Fatal(err)
	}
	if string(fromStruct) != string(fromMap) {
		t.Fatalf("struct and map forms differ: %s vs %s", fromStruct, fromMap)
	}
}

func TestHashCanonicalJSONStable(t *testing.T) {
	v := map[string]any{"timestamp": "2026-01-02T03:04:05Z", "run_id": "r1"}
	d1, _, err := HashCanonicalJSON(v)
	if err != nil {
		t.Fatal(err)
	}
	d2, _, err := HashCanonicalJSON(map[string]any{"run_id": "r1", "timestamp": "2026-01-02T03:04:05Z"})
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatalf("canonical hashes differ: %s vs %s", d1, d2)
	}
}
