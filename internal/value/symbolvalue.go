package value

// SymbolValue is the unit of flow between processing nodes: a symbol paired
// with the Value computed or observed for it. Interval nodes emit the
// wildcard sentinel symbol "*" to mean "tick every child regardless of
// symbol", per spec.md §9.
type SymbolValue struct {
	Symbol string
	Value  Value
}

// WildcardSymbol is the sentinel emitted by Interval nodes.
const WildcardSymbol = "*"

func (sv SymbolValue) IsWildcard() bool { return sv.Symbol == WildcardSymbol }
