// Package graph defines the dependency-graph node records the lowering
// engine consumes. Nodes are produced by the (external) dependency-graph
// builder and are read-only from the generator's point of view.
package graph

import "github.com/vk/mk2ninja/internal/vars"

// Dep is one dependency edge: the name the edge was declared with and the
// node it resolved to.
type Dep struct {
	Name string
	Node *Node
}

// Named pairs a root node with the name it was requested under.
type Named struct {
	Name string
	Node *Node
}

// Node is one output in the resolved dependency graph.
type Node struct {
	// Output is the node identity; a node is realized at most once per run
	// regardless of how many edges reach it.
	Output string

	// Recipe holds the unevaluated recipe lines. Each line evaluates to one
	// command; leading @ and - markers are still attached in the evaluated
	// text.
	Recipe []vars.Value

	Deps        []Dep
	OrderOnlys  []Dep
	Validations []Dep

	HasRule         bool
	IsPhony         bool
	IsRestat        bool
	IsDefaultTarget bool

	// DepfileVar, when set, overrides dependency-file discovery.
	DepfileVar vars.Value
	// PoolVar, when set, names the execution pool ("none" suppresses any
	// pool).
	PoolVar vars.Value

	ImplicitOutputs []string
	SymlinkOutputs  []string

	Loc vars.Loc
}
