package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/pipeline"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	a := &app{out: &buf}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return buf.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SHEETMETAL_CONFIG", "")
	t.Setenv("SHEETMETAL_DB_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("SHEETMETAL_LISTEN_ADDR", "")
	t.Setenv("SHEETMETAL_LOG_LEVEL", "error")
	return dir
}

func writeFixture(t *testing.T, dir, name string) string {
	t.Helper()
	out, err := run(t, "fixture", name)
	if err != nil {
		t.Fatalf("fixture %s: %v", name, err)
	}
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "sheetmetal dev") {
		t.Errorf("output = %q, want sheetmetal dev prefix", out)
	}
}

func TestFixtureUnknown(t *testing.T) {
	if _, err := run(t, "fixture", "gear"); err == nil {
		t.Fatal("expected error for unknown fixture, got nil")
	}
}

func TestClassifyCommand(t *testing.T) {
	dir := setupEnv(t)
	path := writeFixture(t, dir, "block")

	out, err := run(t, "classify", path)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	var res domain.ClassificationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if res.Pile != domain.PileOther {
		t.Errorf("pile = %s, want other", res.Pile)
	}
}

func TestConvertCommandBatch(t *testing.T) {
	dir := setupEnv(t)
	sheet := writeFixture(t, dir, "sheet")
	missing := filepath.Join(dir, "missing.json")

	out, err := run(t, "convert", sheet, missing)
	if err == nil {
		t.Fatal("expected error when one part fails, got nil")
	}

	dec := json.NewDecoder(strings.NewReader(out))
	var outcomes []pipeline.Outcome
	for dec.More() {
		var o pipeline.Outcome
		if err := dec.Decode(&o); err != nil {
			t.Fatalf("decode outcome: %v", err)
		}
		outcomes = append(outcomes, o)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Status != pipeline.StatusConverted {
		t.Errorf("first status = %s, want converted", outcomes[0].Status)
	}
	if outcomes[1].Status != pipeline.StatusFailed {
		t.Errorf("second status = %s, want failed", outcomes[1].Status)
	}

	out, err = run(t, "problems")
	if err != nil {
		t.Fatalf("problems: %v", err)
	}
	var problems []domain.Problem
	if err := json.Unmarshal([]byte(out), &problems); err != nil {
		t.Fatalf("decode problems: %v", err)
	}
	if len(problems) != 1 || problems[0].FilePath != missing {
		t.Fatalf("problems = %+v, want one for %s", problems, missing)
	}
	if !strings.Contains(problems[0].Reason, "read part file") {
		t.Errorf("reason = %q, want the load error", problems[0].Reason)
	}
	if problems[0].Category != domain.ProblemInput {
		t.Errorf("category = %q, want input", problems[0].Category)
	}
}

func TestHistoryCommand(t *testing.T) {
	dir := setupEnv(t)
	sheet := writeFixture(t, dir, "sheet")
	missing := filepath.Join(dir, "missing.json")
	run(t, "convert", sheet, missing)

	out, err := run(t, "history", sheet)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var h fileHistory
	if err := json.Unmarshal([]byte(out), &h); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if h.Classification == nil || h.Classification.Pile != domain.PileSheetMetal {
		t.Errorf("classification = %+v, want sheet_metal", h.Classification)
	}
	if len(h.Problems) != 0 {
		t.Errorf("problems = %+v, want none", h.Problems)
	}

	out, err = run(t, "history", missing)
	if err != nil {
		t.Fatalf("history missing: %v", err)
	}
	h = fileHistory{}
	if err := json.Unmarshal([]byte(out), &h); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if h.Classification != nil {
		t.Errorf("classification = %+v, want none", h.Classification)
	}
	if len(h.Problems) != 1 {
		t.Errorf("problems = %d, want 1", len(h.Problems))
	}
}
