package fuzztests

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

const maxSeedBytes = 64 << 10 // clamp for the seed corpus

func addCorpusSeeds(f *testing.F) {
	addTestdataSeeds(f)
	addManifestSeeds(f)
}

// addTestdataSeeds walks the repository testdata tree, if present, and adds
// every TOML file as a seed.
func addTestdataSeeds(f *testing.F) {
	root := filepath.Join("..", "..", "testdata")
	if _, err := os.Stat(root); err != nil {
		return
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".toml" {
			return nil
		}
		// #nosec G304 -- path comes from repository testdata walk
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		f.Add(clampSeed(src))
		return nil
	})
	if err != nil {
		return
	}
}

// addManifestSeeds adds small hand-written manifests so the corpus is never
// empty even without a testdata tree.
func addManifestSeeds(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte("module = \"org.std\"\nversion = \"1.0.0\"\n"))
	f.Add([]byte(`
module = "org.std"
version = "1.4.0"

[[blocks]]
name = "math.add"
purity = "pure"
determinism = "pure"

  [[blocks.inputs]]
  name = "a"
  type = "T"
  kind = "value"

  [[blocks.outputs]]
  name = "sum"
  type = "T"
  kind = "value"
`))
	f.Add([]byte(`
schema = "loom/graph@1"
module = "app.demo"
name = "pipeline"
version = "0.1.0"

[[requires]]
module = "org.std"
constraint = "^1.4"

[[consts]]
id = "seed"
type = "i64"
value = 0

[[nodes]]
id = "fold"
ref = "org.std/stream.fold"

[[edges]]
id = "e0"
from = { node = "$const", port = "seed" }
to = { node = "fold", port = "init" }

  [edges.policy]
  backpressure = "drop_oldest"
  bound = 16

[[exports]]
id = "out"
node = "fold"
port = "acc"
type = "i64"
`))
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}
