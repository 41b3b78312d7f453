package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTool(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	dir := t.TempDir()
	tool := writeTool(t, dir, "fake-ytdlp", `echo "2025.01.15"`)
	stderrTool := writeTool(t, dir, "fake-gain", `echo "mp3gain version 1.6.2" >&2; exit 1`)

	statuses := CheckBinaries(context.Background(), []Requirement{
		{Name: "yt-dlp", Command: tool, VersionArgs: []string{"--version"}},
		{Name: "mp3gain", Command: stderrTool, VersionArgs: []string{"-v"}},
		{Name: "missing", Command: filepath.Join(dir, "does-not-exist")},
		{Name: "optional", Command: filepath.Join(dir, "also-missing"), Optional: true},
		{Name: "blank", Command: "  "},
	})

	if len(statuses) != 5 {
		t.Fatalf("got %d statuses, want 5", len(statuses))
	}
	if !statuses[0].Available || statuses[0].Version != "2025.01.15" || statuses[0].Path != tool {
		t.Errorf("yt-dlp status = %+v", statuses[0])
	}
	if !statuses[1].Available || statuses[1].Version != "mp3gain version 1.6.2" {
		t.Errorf("mp3gain status = %+v", statuses[1])
	}
	if statuses[2].Available || statuses[2].Detail == "" {
		t.Errorf("missing status = %+v", statuses[2])
	}
	if statuses[4].Detail != "command not configured" {
		t.Errorf("blank status detail = %q", statuses[4].Detail)
	}

	missing := MissingRequired(statuses)
	if len(missing) != 2 || missing[0].Name != "missing" || missing[1].Name != "blank" {
		t.Errorf("MissingRequired() = %+v", missing)
	}
}

func TestRequirements(t *testing.T) {
	reqs := Requirements("/opt/yt-dlp", "mp3gain")
	if len(reqs) != 3 {
		t.Fatalf("got %d requirements", len(reqs))
	}
	if reqs[0].Command != "/opt/yt-dlp" || reqs[2].Command != "mp3gain" {
		t.Errorf("commands = %q, %q", reqs[0].Command, reqs[2].Command)
	}
}
