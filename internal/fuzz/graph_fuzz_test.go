package fuzztests

import (
	"testing"

	"loom/internal/ir"
	"loom/internal/source"
)

func FuzzDecodeGraph(f *testing.F) {
	addCorpusSeeds(f)
	f.Fuzz(func(t *testing.T, input []byte) {
		if len(input) > maxFuzzInput {
			input = append([]byte(nil), input[:maxFuzzInput]...)
		} else {
			input = append([]byte(nil), input...)
		}

		fs := source.NewFileSet()
		fileID := fs.AddVirtual("fuzz.graph.toml", input)

		g, err := ir.DecodeGraph(fs, fileID)
		if err != nil {
			return
		}
		if g == nil {
			t.Fatal("nil graph spec without error")
		}
		if ir.GraphDigest(g) == "" {
			t.Fatal("empty graph digest")
		}
	})
}
