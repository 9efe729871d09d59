package diag

import (
	"loom/internal/source"
)

// Note attaches secondary context to a diagnostic, e.g. the other end of a
// conflicting edge or the constraint that contributed to a conflict.
type Note struct {
	Span source.Span
	Msg  string
}

// FixEdit is a single text edit of a suggested fix.
type FixEdit struct {
	Span    source.Span
	NewText string
}

// Fix is a human-applicable repair suggestion ("insert map adapter",
// "add fold with init:0"). Edits may be empty when the fix is advisory.
type Fix struct {
	Title string
	Edits []FixEdit
}

// Diagnostic is the central finding record shared by all phases.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Span
	Notes    []Note
	Fixes    []Fix
}

func New(sev Severity, code Code, primary source.Span, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  primary,
		Message:  msg,
	}
}

func NewError(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

func (d Diagnostic) WithNote(sp source.Span, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Span: sp, Msg: msg})
	return d
}

func (d Diagnostic) WithFix(title string, edits ...FixEdit) Diagnostic {
	d.Fixes = append(d.Fixes, Fix{Title: title, Edits: edits})
	return d
}
