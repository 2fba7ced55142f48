package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const annotated = `package api

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns server health status
// @Response: {"status": "ok"}
func HandleHealth() {}

// @Title: Get Campaign
// @Route: GET /api/campaigns/{id}
// @Response: Campaign object
func HandleCampaign() {}

// @Route: GET /api/untitled
// @Response: ignored
func Untitled() {}
`

func TestCollectAndRender(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "handlers.go"), []byte(annotated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "handlers_test.go"), []byte(annotated), 0o644); err != nil {
		t.Fatal(err)
	}

	endpoints, err := collect(dir)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %+v", endpoints)
	}
	if endpoints[0].Route != "GET /api/campaigns/{id}" {
		t.Fatalf("endpoints not sorted by path: %+v", endpoints)
	}

	out := render(endpoints)
	for _, want := range []string{"= HTTP API Reference", "== Get Health", "`GET /api/health`", "Returns server health status"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}
