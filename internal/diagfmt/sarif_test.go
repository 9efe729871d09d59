package diagfmt

import (
	"bytes"
	"encoding/json"
	"testing"

	"loom/internal/diag"
	"loom/internal/source"
)

func TestSarifShape(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("name = \"demo\"\nversion = \"zero\"\n")
	fileID := fs.AddVirtual("mod.toml", content)
	fs.SetBaseDir(".")

	bag := diag.NewBag(10)
	bag.Add(diag.NewError(
		diag.VersionInvalid,
		source.Span{File: fileID, Start: 24, End: 30},
		"version is not valid semver",
	))
	bag.Add(diag.New(
		diag.SevWarning,
		diag.AdapterSuggested,
		source.Span{File: fileID, Start: 0, End: 4},
		"insert map adapter int->string",
	))
	// Same code twice: the rule table must stay deduplicated.
	bag.Add(diag.NewError(
		diag.VersionInvalid,
		source.Span{File: fileID, Start: 0, End: 4},
		"compat floor is not valid semver",
	))

	var buf bytes.Buffer
	meta := SarifRunMeta{
		ToolName:       "loom",
		ToolVersion:    "0.1.0",
		InvocationArgs: []string{"loom", "validate", "mod.toml"},
	}
	if err := Sarif(&buf, bag, fs, meta); err != nil {
		t.Fatalf("Sarif failed: %v", err)
	}

	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if log.Version != "2.1.0" {
		t.Errorf("version = %q, want 2.1.0", log.Version)
	}
	if len(log.Runs) != 1 {
		t.Fatalf("expected one run, got %d", len(log.Runs))
	}

	run := log.Runs[0]
	if run.Tool.Driver.Name != "loom" || run.Tool.Driver.Version != "0.1.0" {
		t.Errorf("driver = %+v", run.Tool.Driver)
	}
	if len(run.Tool.Driver.Rules) != 2 {
		t.Fatalf("expected two deduplicated rules, got %+v", run.Tool.Driver.Rules)
	}
	if run.Tool.Driver.Rules[0].ID != "MAN3004" || run.Tool.Driver.Rules[0].Name != "VersionInvalid" {
		t.Errorf("first rule = %+v", run.Tool.Driver.Rules[0])
	}

	if len(run.Results) != 3 {
		t.Fatalf("expected three results, got %d", len(run.Results))
	}
	if run.Results[0].Level != "error" || run.Results[1].Level != "warning" {
		t.Errorf("levels = %q, %q", run.Results[0].Level, run.Results[1].Level)
	}
	if run.Results[0].RuleID != "MAN3004" {
		t.Errorf("ruleId = %q", run.Results[0].RuleID)
	}

	region := run.Results[0].Locations[0].PhysicalLocation.Region
	if region.StartLine != 2 || region.StartColumn != 11 {
		t.Errorf("region start = %d:%d, want 2:11", region.StartLine, region.StartColumn)
	}

	if len(run.Invocations) != 1 {
		t.Fatalf("expected one invocation, got %d", len(run.Invocations))
	}
	if run.Invocations[0].ExecutionSuccessful {
		t.Error("executionSuccessful should be false when errors are present")
	}
}

func TestSarifCleanRun(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("mod.toml", []byte("name = \"demo\"\n"))

	bag := diag.NewBag(10)
	bag.Add(diag.New(
		diag.SevInfo,
		diag.AdapterSuggested,
		source.Span{File: fileID, Start: 0, End: 4},
		"coercion int->string available",
	))

	var buf bytes.Buffer
	if err := Sarif(&buf, bag, fs, SarifRunMeta{ToolName: "loom"}); err != nil {
		t.Fatalf("Sarif failed: %v", err)
	}

	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	run := log.Runs[0]
	if !run.Invocations[0].ExecutionSuccessful {
		t.Error("executionSuccessful should be true without errors")
	}
	if run.Results[0].Level != "note" {
		t.Errorf("info should map to note, got %q", run.Results[0].Level)
	}
}
