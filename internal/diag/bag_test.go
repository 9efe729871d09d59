package diag

import (
	"testing"

	"loom/internal/source"
)

func span(file source.FileID, start, end uint32) source.Span {
	return source.Span{File: file, Start: start, End: end}
}

func TestBagLimit(t *testing.T) {
	b := NewBag(2)
	if !b.Add(NewError(CycleDetected, span(0, 0, 1), "one")) {
		t.Fatalf("first add refused")
	}
	if !b.Add(NewError(CycleDetected, span(0, 1, 2), "two")) {
		t.Fatalf("second add refused")
	}
	if b.Add(NewError(CycleDetected, span(0, 2, 3), "three")) {
		t.Fatalf("limit not enforced")
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
}

func TestBagHasErrorsWarnings(t *testing.T) {
	b := NewBag(8)
	b.Add(New(SevInfo, AdapterSuggested, span(0, 0, 1), "info"))
	if b.HasErrors() || b.HasWarnings() {
		t.Fatalf("info-only bag should have no errors/warnings")
	}
	b.Add(New(SevWarning, AdapterSuggested, span(0, 0, 1), "warn"))
	if b.HasErrors() {
		t.Fatalf("warning is not an error")
	}
	if !b.HasWarnings() {
		t.Fatalf("warning not seen")
	}
	b.Add(NewError(TypeMismatch, span(0, 0, 1), "err"))
	if !b.HasErrors() {
		t.Fatalf("error not seen")
	}
}

func TestBagSortDeterministic(t *testing.T) {
	b := NewBag(8)
	b.Add(New(SevWarning, AdapterSuggested, span(1, 5, 9), "w"))
	b.Add(NewError(TypeMismatch, span(0, 10, 12), "e2"))
	b.Add(NewError(PortNotFound, span(0, 2, 4), "e1"))
	b.Add(NewError(TypeMismatch, span(1, 5, 9), "e3"))
	b.Sort()

	items := b.Items()
	wantOrder := []Code{PortNotFound, TypeMismatch, TypeMismatch, AdapterSuggested}
	for i, want := range wantOrder {
		if items[i].Code != want {
			t.Fatalf("items[%d].Code = %s, want %s", i, items[i].Code, want)
		}
	}
	// Same span: error sorts before warning.
	if items[2].Severity != SevError || items[3].Severity != SevWarning {
		t.Fatalf("severity ordering broken at shared span")
	}
}

func TestBagDedup(t *testing.T) {
	b := NewBag(8)
	d := NewError(CycleDetected, span(0, 3, 7), "cycle")
	b.Add(d)
	b.Add(d)
	b.Add(NewError(CycleDetected, span(0, 8, 9), "other span kept"))
	b.Dedup()
	if b.Len() != 2 {
		t.Fatalf("Len() after Dedup = %d, want 2", b.Len())
	}
}

func TestBagMergeGrows(t *testing.T) {
	a := NewBag(1)
	a.Add(NewError(TypeMismatch, span(0, 0, 1), "a"))
	other := NewBag(2)
	other.Add(NewError(PortNotFound, span(0, 1, 2), "b"))
	other.Add(NewError(UnknownType, span(0, 2, 3), "c"))

	a.Merge(other)
	if a.Len() != 3 {
		t.Fatalf("merged Len() = %d, want 3", a.Len())
	}
}

func TestCodeNamesStable(t *testing.T) {
	// The published tooling contract: these identifiers never change.
	stable := map[Code]string{
		TypeMismatch:              "TypeMismatch",
		GenericUnsatisfied:        "GenericUnsatisfied",
		UnknownType:               "UnknownType",
		PortNotFound:              "PortNotFound",
		MissingDefaultForNewInput: "MissingDefaultForNewInput",
		CycleDetected:             "CycleDetected",
		StreamMergePolicyMissing:  "StreamMergePolicyMissing",
		EffectBoundaryViolation:   "EffectBoundaryViolation",
		DisallowedEffectDomain:    "DisallowedEffectDomain",
		NonDeterminismNotSeeded:   "NonDeterminismNotSeeded",
		ResolutionConflict:        "ResolutionConflict",
	}
	for code, want := range stable {
		if got := code.Name(); got != want {
			t.Errorf("Name(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestCodeID(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{TypeMismatch, "TYP1003"},
		{ResolutionConflict, "RES2003"},
		{PurityConflict, "MAN3005"},
		{CycleDetected, "VAL4006"},
		{UndeclaredError, "RUN5001"},
		{UnknownCode, "E0000"},
	}
	for _, tt := range tests {
		if got := tt.code.ID(); got != tt.want {
			t.Errorf("ID(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestReportBuilderEmitOnce(t *testing.T) {
	b := NewBag(4)
	rb := ReportError(BagReporter{Bag: b}, TypeMismatch, span(0, 0, 4), "i64 vs string").
		WithNote(span(0, 9, 12), "producer declared here").
		WithFix("insert map adapter")
	rb.Emit()
	rb.Emit()

	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (Emit must be idempotent)", b.Len())
	}
	got := b.Items()[0]
	if len(got.Notes) != 1 || len(got.Fixes) != 1 {
		t.Fatalf("notes/fixes not carried: %+v", got)
	}
	if got.Fixes[0].Title != "insert map adapter" {
		t.Fatalf("fix title = %q", got.Fixes[0].Title)
	}
}
