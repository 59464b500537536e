package treebuilder

import (
	"math"

	"github.com/ndrandal/gma-go/internal/nodes"
	"github.com/ndrandal/gma-go/internal/value"
)

// workerFns maps the "fn" name a Worker node spec names to the reduction it
// runs over its accumulated batch. Named after, and grounded on the same
// small catalogue as, internal/taregistry's built-ins, minus stddev, which
// has no Worker counterpart -- a Worker reduces
// a batch of Values rather than a float64 history, so the two registries
// are kept separate.
var workerFns = map[string]nodes.WorkerFn{
	"sum":   func(vs []value.Value) value.Value { return value.Float(reduce(vs, 0, func(a, b float64) float64 { return a + b })) },
	"mean":  func(vs []value.Value) value.Value { return value.Float(mean(vs)) },
	"min":   func(vs []value.Value) value.Value { return value.Float(reduce(vs, math.Inf(1), math.Min)) },
	"max":   func(vs []value.Value) value.Value { return value.Float(reduce(vs, math.Inf(-1), math.Max)) },
	"last":  func(vs []value.Value) value.Value { return vs[len(vs)-1] },
	"first": func(vs []value.Value) value.Value { return vs[0] },
	"count": func(vs []value.Value) value.Value { return value.Int(int32(len(vs))) },
}

func reduce(vs []value.Value, seed float64, fn func(a, b float64) float64) float64 {
	acc := seed
	for _, v := range vs {
		f, ok := v.AsFloat()
		if !ok {
			continue
		}
		acc = fn(acc, f)
	}
	return acc
}

func mean(vs []value.Value) float64 {
	if len(vs) == 0 {
		return 0
	}
	return reduce(vs, 0, func(a, b float64) float64 { return a + b }) / float64(len(vs))
}
