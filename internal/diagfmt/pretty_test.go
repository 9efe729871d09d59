package diagfmt

import (
	"bytes"
	"strings"
	"testing"

	"loom/internal/diag"
	"loom/internal/source"
)

func TestPathModes(t *testing.T) {
	fs := source.NewFileSet()

	content := []byte("name = \"demo\"\nversion = \"zero\"\n")
	fileID := fs.AddVirtual("/home/user/project/graphs/app.toml", content)
	fs.SetBaseDir("/home/user/project")

	bag := diag.NewBag(10)
	bag.Add(diag.NewError(
		diag.VersionInvalid,
		source.Span{File: fileID, Start: 24, End: 30},
		"version is not valid semver",
	))

	tests := []struct {
		name     string
		mode     PathMode
		contains string
	}{
		{
			name:     "absolute path",
			mode:     PathModeAbsolute,
			contains: "/home/user/project/graphs/app.toml",
		},
		{
			name:     "relative path",
			mode:     PathModeRelative,
			contains: "graphs/app.toml",
		},
		{
			name:     "basename only",
			mode:     PathModeBasename,
			contains: "app.toml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Pretty(&buf, bag, fs, PrettyOpts{PathMode: tt.mode})
			output := buf.String()

			if !strings.Contains(output, tt.contains) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.contains, output)
			}
			if !strings.Contains(output, "ERROR") {
				t.Error("expected ERROR in output")
			}
			if !strings.Contains(output, "MAN3004") {
				t.Error("expected MAN3004 code in output")
			}
			if !strings.Contains(output, "not valid semver") {
				t.Error("expected message in output")
			}
		})
	}
}

func TestPathModeAuto(t *testing.T) {
	fs := source.NewFileSet()

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "short path stays as is",
			path:     "app.toml",
			expected: "app.toml",
		},
		{
			name:     "long absolute path collapses to basename",
			path:     "/very/long/absolute/path/to/some/nested/registry/module.toml",
			expected: "module.toml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := []byte("name = \"demo\"\n")
			fileID := fs.AddVirtual(tt.path, content)

			bag := diag.NewBag(10)
			bag.Add(diag.New(
				diag.SevWarning,
				diag.AdapterSuggested,
				source.Span{File: fileID, Start: 0, End: 4},
				"insert map adapter int->string",
			))

			var buf bytes.Buffer
			Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeAuto})
			output := buf.String()

			if !strings.Contains(output, tt.expected) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.expected, output)
			}
			if !strings.Contains(output, "WARNING") {
				t.Error("expected WARNING in output")
			}
		})
	}
}

func TestPrettyHeaderPosition(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("name = \"demo\"\nversion = \"O.1.0\"\n")
	fileID := fs.AddVirtual("mod.toml", content)

	bag := diag.NewBag(2)
	// The quoted value on line 2 starts at byte 24.
	bag.Add(diag.NewError(
		diag.VersionInvalid,
		source.Span{File: fileID, Start: 24, End: 31},
		"version is not valid semver",
	))

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeBasename})
	output := buf.String()

	if !strings.Contains(output, "mod.toml:2:11: ERROR MAN3004: version is not valid semver") {
		t.Fatalf("expected header with line 2 col 11, got:\n%s", output)
	}
}

func TestPrettyCaret(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("name = \"demo\"\nversion = \"O.1.0\"\n")
	fileID := fs.AddVirtual("mod.toml", content)

	bag := diag.NewBag(2)
	bag.Add(diag.NewError(
		diag.VersionInvalid,
		source.Span{File: fileID, Start: 24, End: 31},
		"version is not valid semver",
	))

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeBasename})
	output := buf.String()

	if !strings.Contains(output, "| version = \"O.1.0\"") {
		t.Fatalf("expected source line in output, got:\n%s", output)
	}
	// Underline covers the seven bytes of "O.1.0" including quotes,
	// padded past `version = `.
	if !strings.Contains(output, strings.Repeat(" ", 10)+"^~~~~~~") {
		t.Fatalf("expected caret under the quoted value, got:\n%s", output)
	}
}

func TestPrettyContextLines(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("[[nodes]]\nid = \"dup\"\nblock = \"math.add\"\n")
	fileID := fs.AddVirtual("graph.toml", content)

	bag := diag.NewBag(2)
	bag.Add(diag.NewError(
		diag.DuplicateNode,
		source.Span{File: fileID, Start: 15, End: 20},
		"node id \"dup\" is used twice",
	))

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeBasename, Context: 1})
	output := buf.String()

	for _, want := range []string{
		"1 | [[nodes]]",
		"2 | id = \"dup\"",
		"3 | block = \"math.add\"",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected context line %q, got:\n%s", want, output)
		}
	}
	if !strings.Contains(output, "^~~~~") {
		t.Errorf("expected five-wide underline, got:\n%s", output)
	}
}

func TestPrettyNotesAndFixes(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("from = \"a.out\"\nto = \"b.in\"\n")
	fileID := fs.AddVirtual("graph.toml", content)

	bag := diag.NewBag(4)
	primary := source.Span{File: fileID, Start: 7, End: 14}
	d := diag.NewError(diag.TypeMismatch, primary, "int64 does not flow into string")

	noteSpan := source.Span{File: fileID, Start: 20, End: 26}
	d = d.WithNote(noteSpan, "consumer port declared here")

	insertSpan := source.Span{File: fileID, Start: primary.End, End: primary.End}
	d = d.WithFix("insert adapter int->string", diag.FixEdit{Span: insertSpan, NewText: " adapter = \"int->string\""})

	bag.Add(d)

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{
		PathMode:  PathModeBasename,
		ShowNotes: true,
		ShowFixes: true,
	})
	output := buf.String()

	if !strings.Contains(output, "note: graph.toml:2:6: consumer port declared here") {
		t.Fatalf("expected note with location, got:\n%s", output)
	}
	if !strings.Contains(output, "fix #1: insert adapter int->string") {
		t.Fatalf("expected fix entry, got:\n%s", output)
	}
	if !strings.Contains(output, "apply=\" adapter = \\\"int->string\\\"\"") {
		t.Fatalf("expected fix edit apply preview, got:\n%s", output)
	}
}

func TestPrettyFixPreview(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("merge = \"\"")
	fileID := fs.AddVirtual("graph.toml", content)

	bag := diag.NewBag(2)
	insertSpan := source.Span{File: fileID, Start: 9, End: 9}
	d := diag.NewError(diag.StreamMergePolicyMissing, insertSpan, "multi-producer input needs a merge policy")
	d = d.WithFix("set merge policy", diag.FixEdit{Span: insertSpan, NewText: "interleave"})
	bag.Add(d)

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{
		PathMode:    PathModeBasename,
		ShowFixes:   true,
		ShowPreview: true,
	})
	output := buf.String()

	if !strings.Contains(output, "preview:") {
		t.Fatalf("expected preview header, got:\n%s", output)
	}
	if !strings.Contains(output, "- merge = \"\"") {
		t.Fatalf("expected before line in preview, got:\n%s", output)
	}
	if !strings.Contains(output, "+ merge = \"interleave\"") {
		t.Fatalf("expected after line in preview, got:\n%s", output)
	}
}

func TestPrettyWidthClip(t *testing.T) {
	fs := source.NewFileSet()
	long := "title = \"" + strings.Repeat("x", 120) + "\""
	fileID := fs.AddVirtual("mod.toml", []byte(long))

	bag := diag.NewBag(2)
	bag.Add(diag.NewError(
		diag.ManifestField,
		source.Span{File: fileID, Start: 0, End: 5},
		"title too long",
	))

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeBasename, Width: 40})
	output := buf.String()

	if strings.Contains(output, strings.Repeat("x", 120)) {
		t.Fatalf("expected clipped source line, got:\n%s", output)
	}
	if !strings.Contains(output, "...") {
		t.Fatalf("expected ellipsis in clipped line, got:\n%s", output)
	}
}
