package schedule

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"loom/internal/ir"
)

// Invocation is everything a block implementation may read for one firing.
// Inputs hold the merged per-port values for this tick; Params the decoded
// literals; State the value the block returned last tick (loop breakers).
type Invocation struct {
	Node     string
	Block    string // fully qualified key, module@version/name
	Tick     uint64
	Inputs   map[string]ir.Value
	Params   map[string]ir.Value
	State    ir.Value
	HasState bool
	// Rand is seeded per (run seed, node id); nil unless the block is
	// entropy_dependent.
	Rand *rand.Rand
	// NowMs comes from the run clock; virtual during replay.
	NowMs uint64
}

// Result carries a firing's outputs and, for stateful blocks, the state to
// hand back next tick.
type Result struct {
	Outputs  map[string]ir.Value
	State    ir.Value
	HasState bool
}

// BlockFunc implements one block. Domain failures are returned as
// *DomainError so the runner can turn them into error values; any other
// error is undeclared and halts the node's subgraph.
type BlockFunc func(ctx context.Context, inv *Invocation) (*Result, error)

// DomainError is a failure within a block's declared error domain. It flows
// as a value into result-typed consumers instead of aborting the run.
type DomainError struct {
	Domain  string
	Message string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return e.Domain
	}
	return e.Domain + ": " + e.Message
}

// CapabilityDeniedDomain is the error domain every effectful block declares;
// the runner raises it when a capability gate refuses an effect.
const CapabilityDeniedDomain = "capability_denied"

// Denied builds the structured capability_denied failure.
func Denied(effect string) *DomainError {
	return &DomainError{Domain: CapabilityDeniedDomain, Message: fmt.Sprintf("effect %q was denied", effect)}
}

// CapabilityProvider gates one or more effect domains at run time.
type CapabilityProvider interface {
	// Allow decides whether this run may perform the effect.
	Allow(effect string) bool
}

// AllowAll grants every effect; tests and trusted local runs use it.
type AllowAll struct{}

func (AllowAll) Allow(string) bool { return true }

// DenyAll refuses every effect.
type DenyAll struct{}

func (DenyAll) Allow(string) bool { return false }

// Providers joins block implementations with capability gates. Blocks are
// keyed by ir.FQKey(module, version, name); Capabilities by effect pattern
// ("time.*" gates time.read), matched with the same wildcard rules the
// validator uses.
type Providers struct {
	Blocks       map[string]BlockFunc
	Capabilities map[string]CapabilityProvider
}

// Block returns the implementation for a fully qualified key.
func (p *Providers) Block(key string) (BlockFunc, bool) {
	fn, ok := p.Blocks[key]
	return fn, ok
}

// Allowed checks one effect against the registered capability gates. The
// covering pattern that sorts first decides, so overlapping gates resolve
// the same way on every run; no covering gate means denied.
func (p *Providers) Allowed(effect string) bool {
	patterns := make([]string, 0, len(p.Capabilities))
	for pattern := range p.Capabilities {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	for _, pattern := range patterns {
		if ir.EffectAllowed(effect, []string{pattern}) {
			return p.Capabilities[pattern].Allow(effect)
		}
	}
	return false
}
