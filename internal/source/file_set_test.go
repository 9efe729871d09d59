package source

import "testing"

func TestFileSetResolve(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("graph.toml", []byte("name = \"demo\"\nversion = \"0.1.0\"\n"))

	// "version" starts at byte 14.
	start, end := fs.Resolve(Span{File: id, Start: 14, End: 21})
	if start.Line != 2 || start.Col != 1 {
		t.Fatalf("start = %+v, want line 2 col 1", start)
	}
	if end.Line != 2 || end.Col != 8 {
		t.Fatalf("end = %+v, want line 2 col 8", end)
	}
}

func TestFileSetGetLine(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("m.toml", []byte("alpha\nbeta\ngamma"))
	f := fs.Get(id)

	tests := []struct {
		line uint32
		want string
	}{
		{1, "alpha"},
		{2, "beta"},
		{3, "gamma"},
		{4, ""},
		{0, ""},
	}
	for _, tt := range tests {
		if got := f.GetLine(tt.line); got != tt.want {
			t.Errorf("GetLine(%d) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestFileSetLatestWins(t *testing.T) {
	fs := NewFileSet()
	fs.AddVirtual("dup.toml", []byte("old"))
	id2 := fs.AddVirtual("dup.toml", []byte("new"))

	f, ok := fs.GetByPath("dup.toml")
	if !ok {
		t.Fatalf("path not indexed")
	}
	if f.ID != id2 {
		t.Fatalf("index points at %d, want latest %d", f.ID, id2)
	}
	if string(f.Content) != "new" {
		t.Fatalf("content = %q, want %q", f.Content, "new")
	}
}

func TestNormalizeCRLF(t *testing.T) {
	got, changed := normalizeCRLF([]byte("a\r\nb\rc\r\n"))
	if !changed {
		t.Fatalf("expected change")
	}
	if string(got) != "a\nb\rc\n" {
		t.Fatalf("normalizeCRLF = %q", got)
	}

	same, changed := normalizeCRLF([]byte("plain"))
	if changed || string(same) != "plain" {
		t.Fatalf("no-op expected, got %q changed=%v", same, changed)
	}
}
