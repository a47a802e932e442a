package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	stub := filepath.Join(binDir, "present")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	cases := []struct {
		req           Requirement
		wantAvailable bool
		wantDetail    string
	}{
		{req: Requirement{Name: "Present", Command: stub}, wantAvailable: true},
		{req: Requirement{Name: "Missing", Command: "clearly-not-present-binary"}, wantDetail: `binary "clearly-not-present-binary" not found`},
		{req: Requirement{Name: "Unconfigured", Command: "  "}, wantDetail: "command not configured"},
	}

	reqs := make([]Requirement, len(cases))
	for i, tc := range cases {
		reqs[i] = tc.req
	}
	results := CheckBinaries(reqs)
	if len(results) != len(cases) {
		t.Fatalf("expected %d results, got %d", len(cases), len(results))
	}

	for i, tc := range cases {
		got := results[i]
		if got.Name != tc.req.Name {
			t.Fatalf("result %d: name %q, want %q", i, got.Name, tc.req.Name)
		}
		if got.Available != tc.wantAvailable {
			t.Fatalf("result %d (%s): available=%v, want %v", i, got.Name, got.Available, tc.wantAvailable)
		}
		if got.Detail != tc.wantDetail {
			t.Fatalf("result %d (%s): detail %q, want %q", i, got.Name, got.Detail, tc.wantDetail)
		}
	}
}

func TestCheckBinariesTrimsCommand(t *testing.T) {
	results := CheckBinaries([]Requirement{{Name: "Padded", Command: " nothere ", Description: " desc "}})
	if results[0].Command != "nothere" {
		t.Fatalf("command not trimmed: %q", results[0].Command)
	}
	if results[0].Description != "desc" {
		t.Fatalf("description not trimmed: %q", results[0].Description)
	}
}
