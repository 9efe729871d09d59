package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/source"
)

// Current schema version - increment when lockPayload format changes
const lockSchemaVersion uint16 = 1

// LockfileName is the conventional file name, written next to the graph it
// pins.
const LockfileName = "loom.lock"

// lockPayload is the on-disk shape, kept separate from Pin so the wire
// format can evolve without breaking the API.
type lockPayload struct {
	Schema   uint16
	IRDigest string
	Pins     []lockPin
}

type lockPin struct {
	Module  string
	Version string
	Digest  string
}

// Lockfile is a decoded loom.lock: the graph digest it was computed for and
// the exact module versions a resolution produced. Replaying these pins
// against an unchanged registry reproduces the build byte for byte.
type Lockfile struct {
	IRDigest string
	Pins     []Pin
}

// Pinned returns the locked version for a module.
func (lf *Lockfile) Pinned(module string) (Pin, bool) {
	for _, p := range lf.Pins {
		if p.Module == module {
			return p, true
		}
	}
	return Pin{}, false
}

// Resolution converts the lockfile into an applicable Resolution without
// consulting the registry.
func (lf *Lockfile) Resolution() *Resolution {
	res := &Resolution{byModule: make(map[string]string, len(lf.Pins))}
	res.Pins = append(res.Pins, lf.Pins...)
	for _, p := range lf.Pins {
		res.byModule[p.Module] = p.Version
	}
	return res
}

// WriteLockfile serializes the resolution for a graph to path. The write is
// atomic: a temp file in the same directory is renamed over the target.
func WriteLockfile(path string, g *ir.GraphSpec, res *Resolution) error {
	payload := lockPayload{
		Schema:   lockSchemaVersion,
		IRDigest: ir.GraphDigest(g),
	}
	for _, p := range res.Pins {
		payload.Pins = append(payload.Pins, lockPin{Module: p.Module, Version: p.Version, Digest: p.Digest})
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-lock-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(&payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ReadLockfile loads a lockfile. A missing file is (nil, false, nil); a file
// that exists but cannot be decoded is an error.
func ReadLockfile(path string) (*Lockfile, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var payload lockPayload
	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	if payload.Schema != lockSchemaVersion {
		return nil, false, fmt.Errorf("%s: unsupported lockfile schema %d (want %d)", path, payload.Schema, lockSchemaVersion)
	}
	lf := &Lockfile{IRDigest: payload.IRDigest}
	for _, p := range payload.Pins {
		lf.Pins = append(lf.Pins, Pin{Module: p.Module, Version: p.Version, Digest: p.Digest})
	}
	return lf, true, nil
}

// VerifyLockfile checks a lockfile against a fresh resolution of the same
// graph. Every divergence is reported as LockfileStale; the return value is
// true when the lockfile still holds.
func VerifyLockfile(lf *Lockfile, g *ir.GraphSpec, res *Resolution, span source.Span, rep diag.Reporter) bool {
	fresh := true
	if dg := ir.GraphDigest(g); lf.IRDigest != dg {
		diag.ReportError(rep, diag.LockfileStale, span,
			"graph changed since the lockfile was written").
			WithNote(span, fmt.Sprintf("locked digest %s", shortDigest(lf.IRDigest))).
			WithNote(span, fmt.Sprintf("current digest %s", shortDigest(dg))).
			WithFix("re-run lock to refresh the pins").
			Emit()
		fresh = false
	}

	locked := make(map[string]Pin, len(lf.Pins))
	for _, p := range lf.Pins {
		locked[p.Module] = p
	}
	for _, p := range res.Pins {
		lp, ok := locked[p.Module]
		if !ok {
			diag.ReportError(rep, diag.LockfileStale, span,
				fmt.Sprintf("module %s is required now but absent from the lockfile", p.Module)).Emit()
			fresh = false
			continue
		}
		delete(locked, p.Module)
		if lp.Version != p.Version {
			diag.ReportError(rep, diag.LockfileStale, span,
				fmt.Sprintf("module %s resolves to %s but the lockfile pins %s", p.Module, p.Version, lp.Version)).Emit()
			fresh = false
			continue
		}
		if lp.Digest != p.Digest {
			diag.ReportError(rep, diag.LockfileStale, span,
				fmt.Sprintf("registry content for %s@%s changed since the lockfile was written", p.Module, p.Version)).Emit()
			fresh = false
		}
	}
	leftovers := make([]string, 0, len(locked))
	for module := range locked {
		leftovers = append(leftovers, module)
	}
	sort.Strings(leftovers)
	for _, module := range leftovers {
		diag.ReportError(rep, diag.LockfileStale, span,
			fmt.Sprintf("lockfile pins %s which the graph no longer requires", module)).Emit()
		fresh = false
	}
	return fresh
}

func shortDigest(d string) string {
	const prefix = "sha256:"
	if len(d) >= len(prefix)+12 {
		return d[:len(prefix)+12]
	}
	return d
}
