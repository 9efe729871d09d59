package blocks

import (
	"context"
	"fmt"
	"strings"

	"loom/internal/ir"
	"loom/internal/schedule"
)

// Providers wires every stock block implementation under its fully qualified
// key and grants the module's own capability domains. Hosts that want to gate
// an effect overwrite the Capabilities entry before running.
func Providers() *schedule.Providers {
	return &schedule.Providers{
		Blocks: map[string]schedule.BlockFunc{
			key("math.add"):      mathAdd,
			key("math.sub"):      mathSub,
			key("math.mul"):      mathMul,
			key("math.div"):      mathDiv,
			key("string.concat"): stringConcat,
			key("string.upper"):  stringUpper,
			key("string.split"):  stringSplit,
			key("coll.map"):      collMap,
			key("coll.filter"):   collFilter,
			key("coll.sum"):      collSum,
			key("seq.fold"):      seqFold,
			key("seq.scan"):      seqScan,
			key("pass.identity"): passIdentity,
			key("sink.collect"):  sinkCollect,
			key("time.now"):      timeNow,
			key("rand.uniform"):  randUniform,
			key("io.echo"):       ioEcho,
		},
		Capabilities: map[string]schedule.CapabilityProvider{
			"time.read": schedule.AllowAll{},
			"rand":      schedule.AllowAll{},
			"io.write":  schedule.AllowAll{},
		},
	}
}

func key(name string) string {
	return ir.FQKey(ModuleName, ModuleVersion, name)
}

func out(port string, v ir.Value) *schedule.Result {
	return &schedule.Result{Outputs: map[string]ir.Value{port: v}}
}

// in fetches a required input; the scheduler guarantees presence for fireable
// nodes, so a miss is a wiring bug worth failing loudly on.
func in(inv *schedule.Invocation, port string) (ir.Value, error) {
	v, ok := inv.Inputs[port]
	if !ok {
		return ir.Value{}, fmt.Errorf("missing input %q", port)
	}
	return v, nil
}

func intIn(inv *schedule.Invocation, port string) (int64, error) {
	v, err := in(inv, port)
	if err != nil {
		return 0, err
	}
	if v.Kind != ir.KindInt {
		return 0, fmt.Errorf("input %q: want i64, got %s", port, v.Kind)
	}
	return v.Int, nil
}

func stringIn(inv *schedule.Invocation, port string) (string, error) {
	v, err := in(inv, port)
	if err != nil {
		return "", err
	}
	if v.Kind != ir.KindString {
		return "", fmt.Errorf("input %q: want string, got %s", port, v.Kind)
	}
	return v.Str, nil
}

func listIn(inv *schedule.Invocation, port string) ([]ir.Value, error) {
	v, err := in(inv, port)
	if err != nil {
		return nil, err
	}
	if v.Kind != ir.KindList {
		return nil, fmt.Errorf("input %q: want list, got %s", port, v.Kind)
	}
	return v.Elems, nil
}

func mathAdd(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	a, err := intIn(inv, "a")
	if err != nil {
		return nil, err
	}
	b, err := intIn(inv, "b")
	if err != nil {
		return nil, err
	}
	return out("sum", ir.IntValue(a+b)), nil
}

func mathSub(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	a, err := intIn(inv, "a")
	if err != nil {
		return nil, err
	}
	b, err := intIn(inv, "b")
	if err != nil {
		return nil, err
	}
	return out("diff", ir.IntValue(a-b)), nil
}

func mathMul(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	a, err := intIn(inv, "a")
	if err != nil {
		return nil, err
	}
	b, err := intIn(inv, "b")
	if err != nil {
		return nil, err
	}
	return out("product", ir.IntValue(a*b)), nil
}

// mathDiv reports division by zero through its declared "math" domain, so the
// failure travels the quot edge as a result value instead of halting the run.
func mathDiv(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	a, err := intIn(inv, "a")
	if err != nil {
		return nil, err
	}
	b, err := intIn(inv, "b")
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, &schedule.DomainError{Domain: "math", Message: "division by zero"}
	}
	return out("quot", ir.OkValue(ir.IntValue(a/b))), nil
}

func stringConcat(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	a, err := stringIn(inv, "a")
	if err != nil {
		return nil, err
	}
	b, err := stringIn(inv, "b")
	if err != nil {
		return nil, err
	}
	sep := inv.Params["sep"].Str
	return out("s", ir.StringValue(a+sep+b)), nil
}

func stringUpper(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	s, err := stringIn(inv, "s")
	if err != nil {
		return nil, err
	}
	return out("upper", ir.StringValue(strings.ToUpper(s))), nil
}

func stringSplit(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	s, err := stringIn(inv, "s")
	if err != nil {
		return nil, err
	}
	sep := inv.Params["sep"].Str
	parts := strings.Split(s, sep)
	elems := make([]ir.Value, len(parts))
	for i, p := range parts {
		elems[i] = ir.StringValue(p)
	}
	return out("parts", ir.ListValue(elems...)), nil
}

// collMap applies the affine map scale*x+offset to every element. The params
// stand in for the original's function inputs, which need a closure type the
// value model does not carry.
func collMap(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	xs, err := listIn(inv, "xs")
	if err != nil {
		return nil, err
	}
	scale := inv.Params["scale"].Int
	offset := inv.Params["offset"].Int
	ys := make([]ir.Value, len(xs))
	for i, x := range xs {
		if x.Kind != ir.KindInt {
			return nil, fmt.Errorf("xs[%d]: want i64, got %s", i, x.Kind)
		}
		ys[i] = ir.IntValue(x.Int*scale + offset)
	}
	return out("ys", ir.ListValue(ys...)), nil
}

func collFilter(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	xs, err := listIn(inv, "xs")
	if err != nil {
		return nil, err
	}
	min := inv.Params["min"].Int
	kept := make([]ir.Value, 0, len(xs))
	for i, x := range xs {
		if x.Kind != ir.KindInt {
			return nil, fmt.Errorf("xs[%d]: want i64, got %s", i, x.Kind)
		}
		if x.Int >= min {
			kept = append(kept, x)
		}
	}
	return out("kept", ir.ListValue(kept...)), nil
}

func collSum(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	xs, err := listIn(inv, "xs")
	if err != nil {
		return nil, err
	}
	var total int64
	for i, x := range xs {
		if x.Kind != ir.KindInt {
			return nil, fmt.Errorf("xs[%d]: want i64, got %s", i, x.Kind)
		}
		total += x.Int
	}
	return out("total", ir.IntValue(total)), nil
}

// seqFold is the back-edge breaker: prev arrives over the loop (or from its
// default on the first tick) and the new accumulator leaves on acc.
func seqFold(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	x, err := intIn(inv, "x")
	if err != nil {
		return nil, err
	}
	prev, err := intIn(inv, "prev")
	if err != nil {
		return nil, err
	}
	return out("acc", ir.IntValue(prev+x)), nil
}

// seqScan keeps its running sum in scheduler state instead of a back edge.
func seqScan(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	x, err := intIn(inv, "x")
	if err != nil {
		return nil, err
	}
	var acc int64
	if inv.HasState {
		acc = inv.State.Int
	}
	acc += x
	res := out("acc", ir.IntValue(acc))
	res.State = ir.IntValue(acc)
	res.HasState = true
	return res, nil
}

func passIdentity(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	v, err := in(inv, "v")
	if err != nil {
		return nil, err
	}
	return out("v", v), nil
}

// sinkCollect emits everything seen so far, one list per tick.
func sinkCollect(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	v, err := in(inv, "v")
	if err != nil {
		return nil, err
	}
	var seen []ir.Value
	if inv.HasState {
		seen = inv.State.Elems
	}
	seen = append(seen, v)
	all := ir.ListValue(seen...)
	res := out("all", all)
	res.State = all
	res.HasState = true
	return res, nil
}

func timeNow(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	return out("now", ir.IntValue(int64(inv.NowMs))), nil //nolint:gosec
}

func randUniform(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	if inv.Rand == nil {
		return nil, fmt.Errorf("no entropy source wired")
	}
	lo := inv.Params["lo"].Float
	hi := inv.Params["hi"].Float
	return out("v", ir.FloatValue(lo+inv.Rand.Float64()*(hi-lo))), nil
}

// ioEcho is the stock boundary sink: it succeeds with its input so graphs can
// observe the committed value, while hosts gate the io.write domain.
func ioEcho(_ context.Context, inv *schedule.Invocation) (*schedule.Result, error) {
	s, err := stringIn(inv, "v")
	if err != nil {
		return nil, err
	}
	return out("r", ir.OkValue(ir.StringValue(s))), nil
}
