package fuzztests

import (
	"testing"

	"loom/internal/ir"
	"loom/internal/source"
)

const maxFuzzInput = 1 << 16 // 64 KiB

func FuzzDecodeModule(f *testing.F) {
	addCorpusSeeds(f)
	f.Fuzz(func(t *testing.T, input []byte) {
		if len(input) > maxFuzzInput {
			input = append([]byte(nil), input[:maxFuzzInput]...)
		} else {
			input = append([]byte(nil), input...)
		}

		fs := source.NewFileSet()
		fileID := fs.AddVirtual("fuzz.module.toml", input)

		m, err := ir.DecodeModule(fs, fileID)
		if err != nil {
			return
		}
		if m == nil {
			t.Fatal("nil module spec without error")
		}
		// A decoded module must always digest; the digest only walks the
		// spec, so a panic here means decode built something malformed.
		if ir.ModuleDigest(m) == "" {
			t.Fatal("empty module digest")
		}
	})
}
