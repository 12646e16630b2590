package discovery

// Param is one input parameter's name and its source-level type token.
// Types are kept as opaque strings: discovery never needs to
// interpret them, only count them and pass them through to
// diagnostics.
type Param struct {
	Name string
	Type string
}

// CallSite is one statement-level call extracted from a sequence
// body: `callee(arguments...)` or `result := callee(arguments...)`.
// Only plain-identifier call expressions are captured; method calls,
// path-qualified calls, macro invocations, and destructuring binds are
// not.
type CallSite struct {
	Callee        string
	Arguments     []string
	ResultBinding *string
}

// FunctionInfo is everything Discovery needs from one top-level
// function item: its attributes, signature, and (for sequences) its
// extracted call sites.
type FunctionInfo struct {
	Name string

	// Attrs maps a pseudo-attribute name ("tile" or "sequence") to its
	// raw key/value pairs, if the function carries that attribute.
	// Unknown keys are preserved here and ignored by the caller.
	Attrs map[string]map[string]string

	Inputs    []Param
	Outputs   int // flattened return-value count
	CallSites []CallSite
}

// HasAttr reports whether the function carries the named
// pseudo-attribute.
func (f FunctionInfo) HasAttr(name string) bool {
	_, ok := f.Attrs[name]
	return ok
}

// ASTProvider abstracts the host language's parser: something that,
// for a given source file, yields its top-level
// function items with attributes, signatures, and call sites. The
// host language's parser and type checker live entirely behind this
// interface; Discovery itself never parses source.
type ASTProvider interface {
	// FunctionsInFile returns every top-level function declared in
	// path, in authoring order.
	FunctionsInFile(path string) ([]FunctionInfo, error)
}
