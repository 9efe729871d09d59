package ir

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"loom/internal/source"
)

// Manifest decoding. The raw* structs mirror the TOML shape one-to-one; the
// build* functions turn them into IR, attach spans and reject malformed
// enums. Semantic checks (name shapes, type syntax, purity rules) live in
// the registry so they can surface as diagnostics instead of hard errors.

type rawModule struct {
	Module        string     `toml:"module"`
	Version       string     `toml:"version"`
	Title         string     `toml:"title"`
	Description   string     `toml:"description"`
	Capabilities  []string   `toml:"capabilities"`
	Compatibility rawCompat  `toml:"compatibility"`
	Blocks        []rawBlock `toml:"blocks"`
	Graphs        []rawGraph `toml:"graphs"`
}

type rawCompat struct {
	WASM  bool `toml:"wasm"`
	Win64 bool `toml:"win64"`
}

type rawBlock struct {
	Name        string       `toml:"name"`
	Version     string       `toml:"version"`
	Title       string       `toml:"title"`
	Description string       `toml:"description"`
	Purity      string       `toml:"purity"`
	Boundary    bool         `toml:"boundary"`
	Effects     []string     `toml:"effects"`
	Determinism string       `toml:"determinism"`
	Errors      []string     `toml:"errors"`
	Generics    []rawGeneric `toml:"generics"`
	Inputs      []rawPort    `toml:"inputs"`
	Outputs     []rawPort    `toml:"outputs"`
	Params      []rawPort    `toml:"params"`
	Integrity   string       `toml:"integrity"`
}

type rawGeneric struct {
	Name   string   `toml:"name"`
	Bounds []string `toml:"bounds"`
}

type rawPort struct {
	Name         string `toml:"name"`
	Type         string `toml:"type"`
	Kind         string `toml:"kind"`
	Multiplicity string `toml:"multiplicity"`
	Optional     bool   `toml:"optional"`
	Default      any    `toml:"default"`
}

type rawGraph struct {
	Schema      string            `toml:"schema"`
	Module      string            `toml:"module"`
	Name        string            `toml:"name"`
	Version     string            `toml:"version"`
	Title       string            `toml:"title"`
	Description string            `toml:"description"`
	Generics    []rawGeneric      `toml:"generics"`
	Requires    []rawRequire      `toml:"requires"`
	Effects     []string          `toml:"effects"`
	Inputs      []rawPort         `toml:"inputs"`
	Consts      []rawConst        `toml:"consts"`
	Nodes       []rawNode         `toml:"nodes"`
	Edges       []rawEdge         `toml:"edges"`
	Exports     []rawExport       `toml:"exports"`
}

type rawRequire struct {
	Module     string `toml:"module"`
	Constraint string `toml:"constraint"`
}

type rawConst struct {
	ID    string `toml:"id"`
	Type  string `toml:"type"`
	Value any    `toml:"value"`
}

type rawNode struct {
	ID         string            `toml:"id"`
	Kind       string            `toml:"kind"`
	Ref        string            `toml:"ref"`
	Constraint string            `toml:"constraint"`
	Generics   map[string]string `toml:"generics"`
	Params     map[string]any    `toml:"params"`
	Merge      string            `toml:"merge"`
}

type rawEdge struct {
	ID     string      `toml:"id"`
	From   rawEndpoint `toml:"from"`
	To     rawEndpoint `toml:"to"`
	Policy rawPolicy   `toml:"policy"`
}

type rawEndpoint struct {
	Node string `toml:"node"`
	Port string `toml:"port"`
}

type rawPolicy struct {
	Adapter       string         `toml:"adapter"`
	AdapterParams map[string]any `toml:"adapter_params"`
	Backpressure  string         `toml:"backpressure"`
	Bound         int            `toml:"bound"`
	Merge         string         `toml:"merge"`
}

type rawExport struct {
	ID   string `toml:"id"`
	Node string `toml:"node"`
	Port string `toml:"port"`
	Type string `toml:"type"`
}

// DecodeModuleFile loads path into the file set and decodes it as a module
// manifest.
func DecodeModuleFile(fs *source.FileSet, path string) (*ModuleSpec, source.FileID, error) {
	id, err := fs.Load(path)
	if err != nil {
		return nil, 0, err
	}
	m, err := DecodeModule(fs, id)
	return m, id, err
}

// DecodeModule decodes a module manifest already present in the file set.
func DecodeModule(fs *source.FileSet, id source.FileID) (*ModuleSpec, error) {
	file := fs.Get(id)
	if file == nil {
		return nil, fmt.Errorf("unknown file id %d", id)
	}
	var raw rawModule
	meta, err := toml.Decode(string(file.Content), &raw)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", file.Path, err)
	}
	if err := checkDecoded(meta, "module", "version"); err != nil {
		return nil, fmt.Errorf("%s: %w", file.Path, err)
	}
	sp := newSpanner(file.Content, id)
	m := &ModuleSpec{
		Name:         raw.Module,
		Version:      raw.Version,
		Title:        raw.Title,
		Description:  raw.Description,
		Capabilities: raw.Capabilities,
		Compat:       CompatFlags(raw.Compatibility),
		Span:         sp.find(quoted(raw.Module)),
	}
	for i := range raw.Blocks {
		b, err := buildBlock(&raw.Blocks[i], m.Version, sp)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.Path, err)
		}
		m.Blocks = append(m.Blocks, b)
	}
	for i := range raw.Graphs {
		g, err := buildGraph(&raw.Graphs[i], m.Name, m.Version, sp)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.Path, err)
		}
		m.Graphs = append(m.Graphs, g)
	}
	return m, nil
}

// DecodeGraphFile loads path into the file set and decodes it as a
// standalone graph manifest.
func DecodeGraphFile(fs *source.FileSet, path string) (*GraphSpec, source.FileID, error) {
	id, err := fs.Load(path)
	if err != nil {
		return nil, 0, err
	}
	g, err := DecodeGraph(fs, id)
	return g, id, err
}

// DecodeGraph decodes a standalone graph manifest already present in the
// file set.
func DecodeGraph(fs *source.FileSet, id source.FileID) (*GraphSpec, error) {
	file := fs.Get(id)
	if file == nil {
		return nil, fmt.Errorf("unknown file id %d", id)
	}
	var raw rawGraph
	meta, err := toml.Decode(string(file.Content), &raw)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", file.Path, err)
	}
	if err := checkDecoded(meta, "schema", "name"); err != nil {
		return nil, fmt.Errorf("%s: %w", file.Path, err)
	}
	if raw.Schema != GraphSchema {
		return nil, fmt.Errorf("%s: unsupported schema %q (want %q)", file.Path, raw.Schema, GraphSchema)
	}
	sp := newSpanner(file.Content, id)
	g, err := buildGraph(&raw, raw.Module, raw.Version, sp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file.Path, err)
	}
	return &g, nil
}

// checkDecoded enforces the required top-level keys and rejects unknown
// ones, so a typo like "backpresure" fails loudly instead of silently using
// the default.
func checkDecoded(meta toml.MetaData, required ...string) error {
	for _, key := range required {
		if !meta.IsDefined(key) {
			return fmt.Errorf("missing required key %q", key)
		}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		names := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			names = append(names, k.String())
			if len(names) == 4 {
				break
			}
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(names, ", "))
	}
	return nil
}

func buildBlock(raw *rawBlock, moduleVersion string, sp *spanner) (BlockSpec, error) {
	if raw.Name == "" {
		return BlockSpec{}, fmt.Errorf("block without a name")
	}
	b := BlockSpec{
		Name:        raw.Name,
		Version:     raw.Version,
		Title:       raw.Title,
		Description: raw.Description,
		Boundary:    raw.Boundary,
		Effects:     raw.Effects,
		Errors:      raw.Errors,
		Integrity:   raw.Integrity,
		Span:        sp.find(quoted(raw.Name)),
	}
	if b.Version == "" {
		b.Version = moduleVersion
	}
	var err error
	if b.Purity, err = ParsePurity(raw.Purity); err != nil {
		return BlockSpec{}, fmt.Errorf("block %q: %w", raw.Name, err)
	}
	if b.Determinism, err = ParseDeterminism(raw.Determinism); err != nil {
		return BlockSpec{}, fmt.Errorf("block %q: %w", raw.Name, err)
	}
	for i := range raw.Generics {
		b.Generics = append(b.Generics, buildGeneric(&raw.Generics[i], sp))
	}
	if b.Inputs, err = buildPorts(raw.Inputs, sp); err != nil {
		return BlockSpec{}, fmt.Errorf("block %q: %w", raw.Name, err)
	}
	if b.Outputs, err = buildPorts(raw.Outputs, sp); err != nil {
		return BlockSpec{}, fmt.Errorf("block %q: %w", raw.Name, err)
	}
	if b.Params, err = buildPorts(raw.Params, sp); err != nil {
		return BlockSpec{}, fmt.Errorf("block %q: %w", raw.Name, err)
	}
	return b, nil
}

func buildGeneric(raw *rawGeneric, sp *spanner) GenericParam {
	return GenericParam{Name: raw.Name, Bounds: raw.Bounds, Span: sp.find(quoted(raw.Name))}
}

func buildPorts(raws []rawPort, sp *spanner) ([]PortSpec, error) {
	var ports []PortSpec
	for i := range raws {
		raw := &raws[i]
		if raw.Name == "" {
			return nil, fmt.Errorf("port without a name")
		}
		kind, err := ParsePortKind(raw.Kind)
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", raw.Name, err)
		}
		mult, err := ParseMultiplicity(raw.Multiplicity)
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", raw.Name, err)
		}
		ports = append(ports, PortSpec{
			Name:         raw.Name,
			Type:         raw.Type,
			Kind:         kind,
			Multiplicity: mult,
			Optional:     raw.Optional,
			Default:      raw.Default,
			Span:         sp.find(quoted(raw.Name)),
		})
	}
	return ports, nil
}

func buildGraph(raw *rawGraph, module, version string, sp *spanner) (GraphSpec, error) {
	if raw.Name == "" {
		return GraphSpec{}, fmt.Errorf("graph without a name")
	}
	g := GraphSpec{
		Schema:      raw.Schema,
		Module:      module,
		Name:        raw.Name,
		Version:     version,
		Title:       raw.Title,
		Description: raw.Description,
		Effects:     raw.Effects,
		Span:        sp.find(quoted(raw.Name)),
	}
	if raw.Version != "" {
		g.Version = raw.Version
	}
	if raw.Module != "" {
		g.Module = raw.Module
	}
	for i := range raw.Generics {
		g.Generics = append(g.Generics, buildGeneric(&raw.Generics[i], sp))
	}
	for i := range raw.Requires {
		r := &raw.Requires[i]
		if r.Module == "" {
			return GraphSpec{}, fmt.Errorf("graph %q: requires entry without a module", raw.Name)
		}
		g.Requires = append(g.Requires, ModuleReq{
			Module:     r.Module,
			Constraint: r.Constraint,
			Span:       sp.find(quoted(r.Module)),
		})
	}
	var err error
	if g.Inputs, err = buildPorts(raw.Inputs, sp); err != nil {
		return GraphSpec{}, fmt.Errorf("graph %q: %w", raw.Name, err)
	}
	for i := range raw.Consts {
		c := &raw.Consts[i]
		if c.ID == "" {
			return GraphSpec{}, fmt.Errorf("graph %q: const without an id", raw.Name)
		}
		g.Consts = append(g.Consts, Const{
			ID:    c.ID,
			Type:  c.Type,
			Value: c.Value,
			Span:  sp.find(quoted(c.ID)),
		})
	}
	for i := range raw.Nodes {
		n, err := buildNode(&raw.Nodes[i], sp)
		if err != nil {
			return GraphSpec{}, fmt.Errorf("graph %q: %w", raw.Name, err)
		}
		g.Nodes = append(g.Nodes, n)
	}
	for i := range raw.Edges {
		e, err := buildEdge(&raw.Edges[i], sp)
		if err != nil {
			return GraphSpec{}, fmt.Errorf("graph %q: %w", raw.Name, err)
		}
		g.Edges = append(g.Edges, e)
	}
	for i := range raw.Exports {
		x := &raw.Exports[i]
		if x.ID == "" {
			return GraphSpec{}, fmt.Errorf("graph %q: export without an id", raw.Name)
		}
		g.Exports = append(g.Exports, Export{
			ID:   x.ID,
			Node: x.Node,
			Port: x.Port,
			Type: x.Type,
			Span: sp.find(quoted(x.ID)),
		})
	}
	return g, nil
}

func buildNode(raw *rawNode, sp *spanner) (Node, error) {
	if raw.ID == "" {
		return Node{}, fmt.Errorf("node without an id")
	}
	kind, err := ParseNodeKind(raw.Kind)
	if err != nil {
		return Node{}, fmt.Errorf("node %q: %w", raw.ID, err)
	}
	if raw.Ref == "" {
		return Node{}, fmt.Errorf("node %q: missing ref", raw.ID)
	}
	merge, custom, err := ParseMerge(raw.Merge)
	if err != nil {
		return Node{}, fmt.Errorf("node %q: %w", raw.ID, err)
	}
	return Node{
		ID:          raw.ID,
		Kind:        kind,
		Ref:         raw.Ref,
		Constraint:  raw.Constraint,
		Generics:    raw.Generics,
		Params:      raw.Params,
		Merge:       merge,
		MergeCustom: custom,
		Span:        sp.find(quoted(raw.ID)),
	}, nil
}

func buildEdge(raw *rawEdge, sp *spanner) (Edge, error) {
	if raw.ID == "" {
		return Edge{}, fmt.Errorf("edge without an id")
	}
	span := sp.find(quoted(raw.ID))
	if raw.From.Node == "" || raw.From.Port == "" {
		return Edge{}, fmt.Errorf("edge %q: incomplete \"from\" endpoint", raw.ID)
	}
	if raw.To.Node == "" || raw.To.Port == "" {
		return Edge{}, fmt.Errorf("edge %q: incomplete \"to\" endpoint", raw.ID)
	}
	backpressure, err := ParseBackpressure(raw.Policy.Backpressure)
	if err != nil {
		return Edge{}, fmt.Errorf("edge %q: %w", raw.ID, err)
	}
	merge, custom, err := ParseMerge(raw.Policy.Merge)
	if err != nil {
		return Edge{}, fmt.Errorf("edge %q: %w", raw.ID, err)
	}
	if raw.Policy.Bound < 0 {
		return Edge{}, fmt.Errorf("edge %q: negative buffer bound", raw.ID)
	}
	return Edge{
		ID:   raw.ID,
		From: Endpoint(raw.From),
		To:   Endpoint(raw.To),
		Policy: EdgePolicy{
			Adapter:       raw.Policy.Adapter,
			AdapterParams: raw.Policy.AdapterParams,
			Backpressure:  backpressure,
			Bound:         raw.Policy.Bound,
			Merge:         merge,
			MergeCustom:   custom,
		},
		Span: span,
	}, nil
}

// SyntaxSpan extracts a span from a TOML decode error, falling back to the
// start of the file when the error carries no position.
func SyntaxSpan(file source.FileID, err error) source.Span {
	var perr toml.ParseError
	if errors.As(err, &perr) && perr.Position.Start > 0 {
		start, cerr := safecast.Conv[uint32](perr.Position.Start)
		if cerr != nil {
			return source.Span{File: file}
		}
		length, cerr := safecast.Conv[uint32](max(perr.Position.Len, 1))
		if cerr != nil {
			length = 1
		}
		return source.Span{File: file, Start: start, End: start + length}
	}
	return source.Span{File: file}
}

// spanner attaches best-effort spans to decoded elements by scanning forward
// for their defining literal. Array-of-table elements appear in document
// order, so an advancing cursor lands on the right occurrence even when the
// same identifier repeats later.
type spanner struct {
	content []byte
	file    source.FileID
	pos     int
}

func newSpanner(content []byte, file source.FileID) *spanner {
	return &spanner{content: content, file: file}
}

func (s *spanner) find(needle string) source.Span {
	if needle == "" || needle == `""` {
		return source.Span{File: s.file}
	}
	idx := bytes.Index(s.content[s.pos:], []byte(needle))
	if idx < 0 {
		// Element may sit before the cursor (key order in a table is
		// authorial); retry from the top without moving the cursor.
		if idx = bytes.Index(s.content, []byte(needle)); idx < 0 {
			return source.Span{File: s.file}
		}
		return s.spanAt(idx, len(needle))
	}
	start := s.pos + idx
	s.pos = start + len(needle)
	return s.spanAt(start, len(needle))
}

func (s *spanner) spanAt(start, length int) source.Span {
	start32, err := safecast.Conv[uint32](start)
	if err != nil {
		return source.Span{File: s.file}
	}
	len32, err := safecast.Conv[uint32](length)
	if err != nil {
		return source.Span{File: s.file}
	}
	return source.Span{File: s.file, Start: start32, End: start32 + len32}
}

func quoted(name string) string {
	if name == "" {
		return ""
	}
	return `"` + name + `"`
}
