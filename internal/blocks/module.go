// Package blocks ships the stock block library: pure math, string and
// collection blocks, the fold/scan loop breakers, and the effectful
// time/rand/io sources every non-trivial graph ends up needing. The manifest
// registers like any third-party module; the implementations plug into the
// scheduler through Providers.
package blocks

import "loom/internal/ir"

const (
	// ModuleName is the registry name of the stock module.
	ModuleName = "loom.std"
	// ModuleVersion tracks the manifest below, not the toolchain release.
	ModuleVersion = "1.0.0"
)

// Module builds the stock manifest. Callers register it once per registry;
// the block specs here are the contract the funcs in this package implement.
func Module() *ir.ModuleSpec {
	return &ir.ModuleSpec{
		Name:         ModuleName,
		Version:      ModuleVersion,
		Title:        "Stock blocks",
		Description:  "Pure math/string/collection blocks, loop breakers, and gated time/rand/io sources.",
		Capabilities: []string{"time.read", "rand", "io.write"},
		Blocks: []ir.BlockSpec{
			{
				Name:    "math.add",
				Version: ModuleVersion,
				Inputs: []ir.PortSpec{
					{Name: "a", Type: "i64"},
					{Name: "b", Type: "i64"},
				},
				Outputs: []ir.PortSpec{{Name: "sum", Type: "i64"}},
			},
			{
				Name:    "math.sub",
				Version: ModuleVersion,
				Inputs: []ir.PortSpec{
					{Name: "a", Type: "i64"},
					{Name: "b", Type: "i64"},
				},
				Outputs: []ir.PortSpec{{Name: "diff", Type: "i64"}},
			},
			{
				Name:    "math.mul",
				Version: ModuleVersion,
				Inputs: []ir.PortSpec{
					{Name: "a", Type: "i64"},
					{Name: "b", Type: "i64"},
				},
				Outputs: []ir.PortSpec{{Name: "product", Type: "i64"}},
			},
			{
				Name:    "math.div",
				Version: ModuleVersion,
				Errors:  []string{"math"},
				Inputs: []ir.PortSpec{
					{Name: "a", Type: "i64"},
					{Name: "b", Type: "i64"},
				},
				Outputs: []ir.PortSpec{{Name: "quot", Type: "result<i64,string>"}},
			},
			{
				Name:    "string.concat",
				Version: ModuleVersion,
				Inputs: []ir.PortSpec{
					{Name: "a", Type: "string"},
					{Name: "b", Type: "string"},
				},
				Params:  []ir.PortSpec{{Name: "sep", Type: "string", Optional: true, Default: ""}},
				Outputs: []ir.PortSpec{{Name: "s", Type: "string"}},
			},
			{
				Name:    "string.upper",
				Version: ModuleVersion,
				Inputs:  []ir.PortSpec{{Name: "s", Type: "string"}},
				Outputs: []ir.PortSpec{{Name: "upper", Type: "string"}},
			},
			{
				Name:    "string.split",
				Version: ModuleVersion,
				Inputs:  []ir.PortSpec{{Name: "s", Type: "string"}},
				Params:  []ir.PortSpec{{Name: "sep", Type: "string", Optional: true, Default: ","}},
				Outputs: []ir.PortSpec{{Name: "parts", Type: "list<string>"}},
			},
			{
				Name:    "coll.map",
				Version: ModuleVersion,
				Inputs:  []ir.PortSpec{{Name: "xs", Type: "list<i64>"}},
				Params: []ir.PortSpec{
					{Name: "scale", Type: "i64", Optional: true, Default: int64(1)},
					{Name: "offset", Type: "i64", Optional: true, Default: int64(0)},
				},
				Outputs: []ir.PortSpec{{Name: "ys", Type: "list<i64>"}},
			},
			{
				Name:    "coll.filter",
				Version: ModuleVersion,
				Inputs:  []ir.PortSpec{{Name: "xs", Type: "list<i64>"}},
				Params:  []ir.PortSpec{{Name: "min", Type: "i64", Optional: true, Default: int64(0)}},
				Outputs: []ir.PortSpec{{Name: "kept", Type: "list<i64>"}},
			},
			{
				Name:    "coll.sum",
				Version: ModuleVersion,
				Inputs:  []ir.PortSpec{{Name: "xs", Type: "list<i64>"}},
				Outputs: []ir.PortSpec{{Name: "total", Type: "i64"}},
			},
			{
				// Loop breaker: emits prev + x, where prev rides the back edge.
				Name:    "seq.fold",
				Version: ModuleVersion,
				Inputs: []ir.PortSpec{
					{Name: "x", Type: "i64"},
					{Name: "prev", Type: "i64", Optional: true, Default: int64(0)},
				},
				Outputs: []ir.PortSpec{{Name: "acc", Type: "i64"}},
			},
			{
				// Loop breaker: running sum held in scheduler state.
				Name:    "seq.scan",
				Version: ModuleVersion,
				Inputs:  []ir.PortSpec{{Name: "x", Type: "i64"}},
				Outputs: []ir.PortSpec{{Name: "acc", Type: "i64"}},
			},
			{
				Name:     "pass.identity",
				Version:  ModuleVersion,
				Generics: []ir.GenericParam{{Name: "T"}},
				Inputs:   []ir.PortSpec{{Name: "v", Type: "T"}},
				Outputs:  []ir.PortSpec{{Name: "v", Type: "T"}},
			},
			{
				// Sink at the graph rim: gathers everything it has seen so far.
				Name:     "sink.collect",
				Version:  ModuleVersion,
				Boundary: true,
				Generics: []ir.GenericParam{{Name: "T"}},
				Inputs:   []ir.PortSpec{{Name: "v", Type: "T"}},
				Outputs:  []ir.PortSpec{{Name: "all", Type: "list<T>"}},
			},
			{
				Name:        "time.now",
				Version:     ModuleVersion,
				Purity:      ir.PurityEffect,
				Boundary:    true,
				Effects:     []string{"time.read"},
				Determinism: ir.DetTime,
				Errors:      []string{"capability_denied"},
				Outputs:     []ir.PortSpec{{Name: "now", Type: "i64"}},
			},
			{
				Name:        "rand.uniform",
				Version:     ModuleVersion,
				Purity:      ir.PurityEffect,
				Effects:     []string{"rand"},
				Determinism: ir.DetEntropy,
				Errors:      []string{"capability_denied"},
				Params: []ir.PortSpec{
					{Name: "lo", Type: "f64", Optional: true, Default: float64(0)},
					{Name: "hi", Type: "f64", Optional: true, Default: float64(1)},
				},
				Outputs: []ir.PortSpec{{Name: "v", Type: "f64"}},
			},
			{
				Name:        "io.echo",
				Version:     ModuleVersion,
				Purity:      ir.PurityEffect,
				Boundary:    true,
				Effects:     []string{"io.write"},
				Determinism: ir.DetIO,
				Errors:      []string{"io", "capability_denied"},
				Inputs:      []ir.PortSpec{{Name: "v", Type: "string"}},
				Outputs:     []ir.PortSpec{{Name: "r", Type: "result<string,string>"}},
			},
		},
	}
}
