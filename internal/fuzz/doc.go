// Package fuzztests houses Go fuzz harnesses for the manifest decode
// frontend (bytes -> FileSet -> TOML decode -> module/graph specs). The goal
// is to guard against panics and allocator explosions on arbitrary input;
// decode errors are expected and ignored.
package fuzztests
