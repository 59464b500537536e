// Package treebuilder implements the tree builder (spec.md §4.M): it
// validates a client's declarative request JSON and instantiates the
// corresponding internal/nodes graph, wiring it to the dispatcher, atomic
// store, and namespace provider registry. Grounded on
// original_source/src/tree/TreeBuilder.cpp.
package treebuilder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ndrandal/gma-go/internal/nodes"
	"github.com/ndrandal/gma-go/internal/nsprovider"
	"github.com/ndrandal/gma-go/internal/pool"
	"github.com/ndrandal/gma-go/internal/store"
	"github.com/ndrandal/gma-go/internal/value"
)

const (
	maxDepth     = 32
	maxArraySize = 1024
)

// ErrInvalid classifies every request/tree validation failure, so session
// code can render a uniform error{where:"subscribe", message} response
// (spec.md §7).
var ErrInvalid = errors.New("treebuilder: invalid request")

// NodeSpec is the declarative JSON shape of one processing node and its
// children. "pipeline" is the linear continuation run after this node;
// "child" is the single nested spec Interval/SymbolSplit instantiate.
// "stages"/"inputs" are accepted and depth/size-validated like pipeline for
// forward compatibility with richer client graphs, but only "pipeline" and
// "child" are interpreted by Build.
type NodeSpec struct {
	Type     string     `json:"type"`
	Symbol   string     `json:"symbol,omitempty"`
	Field    string     `json:"field,omitempty"`
	Arity    int        `json:"arity,omitempty"`
	Fn       string     `json:"fn,omitempty"`
	PeriodMs int        `json:"periodMs,omitempty"`
	QueueCap int        `json:"queueCap,omitempty"`
	Pipeline []NodeSpec `json:"pipeline,omitempty"`
	Stages   []NodeSpec `json:"stages,omitempty"`
	Inputs   []NodeSpec `json:"inputs,omitempty"`
	Child    *NodeSpec  `json:"child,omitempty"`
}

// Request is the top-level shape of a validated tree: spec.md §4.M
// requires a non-empty id and an object tree.
type Request struct {
	ID   string   `json:"id"`
	Tree NodeSpec `json:"tree"`
}

var knownTypes = map[string]bool{
	"listener":    true,
	"accessor":    true,
	"worker":      true,
	"aggregate":   true,
	"symbolsplit": true,
	"interval":    true,
}

// Validate checks a Request against spec.md §4.M's structural rules:
// non-empty id, recognised node types throughout, and bounded depth/array
// size on pipeline/stages/inputs.
func Validate(req Request) error {
	if strings.TrimSpace(req.ID) == "" {
		return fmt.Errorf("%w: id must be non-empty", ErrInvalid)
	}
	return validateNode(req.Tree, 0)
}

func validateNode(n NodeSpec, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: tree exceeds max depth %d", ErrInvalid, maxDepth)
	}
	if !knownTypes[n.Type] {
		return fmt.Errorf("%w: unknown node type %q", ErrInvalid, n.Type)
	}
	for _, arr := range [][]NodeSpec{n.Pipeline, n.Stages, n.Inputs} {
		if len(arr) > maxArraySize {
			return fmt.Errorf("%w: array exceeds max size %d", ErrInvalid, maxArraySize)
		}
		for _, child := range arr {
			if err := validateNode(child, depth+1); err != nil {
				return err
			}
		}
	}
	if n.Child != nil {
		if err := validateNode(*n.Child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Deps bundles the collaborators a built graph is wired to.
type Deps struct {
	Store      *store.Store
	Pool       *pool.Pool
	Dispatcher nodes.Dispatcher
	Providers  *nsprovider.Registry
}

// Build constructs the node graph rooted at spec, terminating at terminal
// (normally a *nodes.Responder supplied by the session), starting every
// Listener/Interval it creates along the way. On failure, any nodes already
// constructed are shut down before the error is returned, so a partially
// built tree never leaks a dispatcher registration (spec.md §4.M).
func Build(spec NodeSpec, deps Deps, terminal nodes.Node) (nodes.Node, error) {
	built := make([]nodes.Node, 0, 8)
	root, err := build(spec, deps, terminal, "", &built)
	if err != nil {
		for i := len(built) - 1; i >= 0; i-- {
			built[i].Shutdown()
		}
		return nil, err
	}
	return root, nil
}

func build(spec NodeSpec, deps Deps, terminal nodes.Node, boundSymbol string, built *[]nodes.Node) (nodes.Node, error) {
	symbol := spec.Symbol
	if symbol == "" {
		symbol = boundSymbol
	}

	downstream, err := buildPipeline(spec.Pipeline, deps, terminal, boundSymbol, built)
	if err != nil {
		return nil, err
	}

	switch spec.Type {
	case "listener":
		if symbol == "" || spec.Field == "" {
			return nil, fmt.Errorf("%w: listener requires symbol and field", ErrInvalid)
		}
		l := nodes.NewListener(symbol, spec.Field, downstream, deps.Pool, deps.Dispatcher, spec.QueueCap)
		l.Start()
		*built = append(*built, l)
		return l, nil

	case "accessor":
		if symbol == "" || spec.Field == "" {
			return nil, fmt.Errorf("%w: accessor requires symbol and field", ErrInvalid)
		}
		a := nodes.NewAtomicAccessor(symbol, spec.Field, deps.Store, deps.Providers, downstream)
		*built = append(*built, a)
		return a, nil

	case "worker":
		fn, ok := workerFns[spec.Fn]
		if !ok {
			return nil, fmt.Errorf("%w: unknown worker fn %q", ErrInvalid, spec.Fn)
		}
		w := nodes.NewWorker(fn, spec.Arity, downstream)
		*built = append(*built, w)
		return w, nil

	case "aggregate":
		a := nodes.NewAggregate(spec.Arity, downstream)
		*built = append(*built, a)
		return a, nil

	case "symbolsplit":
		if spec.Child == nil {
			return nil, fmt.Errorf("%w: symbolsplit requires a child", ErrInvalid)
		}
		childSpec := *spec.Child
		split := nodes.NewSymbolSplit(func(sym string) nodes.Node {
			// factory has no error channel; a child that fails to build is
			// replaced with a silent sink rather than panicking the caller
			// (the dispatcher thread that first saw this symbol).
			child, berr := build(childSpec, deps, terminal, sym, built)
			if berr != nil {
				return sinkNode{}
			}
			return child
		})
		*built = append(*built, split)
		return split, nil

	case "interval":
		if spec.Child == nil {
			return nil, fmt.Errorf("%w: interval requires a child", ErrInvalid)
		}
		child, cerr := build(*spec.Child, deps, terminal, boundSymbol, built)
		if cerr != nil {
			return nil, cerr
		}
		period := time.Duration(spec.PeriodMs) * time.Millisecond
		if period <= 0 {
			period = time.Second
		}
		iv := nodes.NewInterval(period, child, deps.Pool)
		iv.Start()
		*built = append(*built, iv)
		return iv, nil

	default:
		return nil, fmt.Errorf("%w: unknown node type %q", ErrInvalid, spec.Type)
	}
}

func buildPipeline(stages []NodeSpec, deps Deps, terminal nodes.Node, boundSymbol string, built *[]nodes.Node) (nodes.Node, error) {
	downstream := terminal
	for i := len(stages) - 1; i >= 0; i-- {
		n, err := build(stages[i], deps, downstream, boundSymbol, built)
		if err != nil {
			return nil, err
		}
		downstream = n
	}
	return downstream, nil
}

type sinkNode struct{}

func (sinkNode) OnValue(value.SymbolValue) {}
func (sinkNode) Shutdown()                 {}
