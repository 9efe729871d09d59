package registry

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/source"
)

// listModuleFiles returns the sorted list of module manifests under dir:
// any "module.toml" or "*.module.toml".
func listModuleFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if base == "module.toml" || strings.HasSuffix(base, ".module.toml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sorted for a deterministic registration order.
	sort.Strings(files)
	return files, nil
}

// LoadDir loads and registers every module manifest under dir. Files are
// preloaded serially into the file set, decoded in parallel (decoding only
// reads the set), then registered in sorted path order so duplicate-version
// outcomes and diagnostics are deterministic.
//
// Problems with individual manifests become diagnostics on rep; the returned
// error covers directory walking and cancellation only. The count is the
// number of modules accepted.
func (r *Registry) LoadDir(ctx context.Context, fset *source.FileSet, dir string, jobs int, rep diag.Reporter) (int, error) {
	files, err := listModuleFiles(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	fileIDs := make(map[string]source.FileID, len(files))
	loadErrors := make(map[string]error, len(files))
	for _, path := range files {
		fileID, err := fset.Load(path)
		if err != nil {
			loadErrors[path] = err
			continue
		}
		fileIDs[path] = fileID
	}

	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	type decoded struct {
		spec *ir.ModuleSpec
		err  error
	}
	// Indices are unique per goroutine, so no mutex is needed.
	results := make([]decoded, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))

	for i, path := range files {
		if _, failed := loadErrors[path]; failed {
			continue
		}
		g.Go(func(i int, path string) func() error {
			return func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				spec, err := ir.DecodeModule(fset, fileIDs[path])
				results[i] = decoded{spec: spec, err: err}
				return nil
			}
		}(i, path))
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	registered := 0
	for i, path := range files {
		if loadErr, failed := loadErrors[path]; failed {
			diag.ReportError(rep, diag.ManifestSyntax, source.Span{},
				"failed to load "+path+": "+loadErr.Error()).Emit()
			continue
		}
		if results[i].err != nil {
			diag.ReportError(rep, diag.ManifestSyntax, ir.SyntaxSpan(fileIDs[path], results[i].err),
				results[i].err.Error()).Emit()
			continue
		}
		if err := r.Register(results[i].spec, rep); err != nil {
			// Diagnostics already explain the rejection.
			continue
		}
		registered++
	}
	return registered, nil
}
