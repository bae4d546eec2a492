// Package parameter implements the hierarchical parameter namespace.
//
// Derived values live in a tree of nodes addressed by fully-qualified dotted
// names:
//
//	$parameter.<name>[.value|.details][.<key>...][[i]]
//	$variables.<name>[.<key>...]
//	$domain.domain_kwargs[.<key>] | $domain.domain_type | $domain.id
//
// A Container holds either parameters (records of {value, details}) or
// variables (plain values). Names are resolved lazily when a builder runs,
// through a Resolver carrying the current domain, the variables and the
// per-domain parameter containers.
package parameter

import (
	"fmt"
	"sort"
	"strings"
)

// Value is the record stored under a parameter name.
type Value struct {
	Value   any            `json:"value"`
	Details map[string]any `json:"details,omitempty"`
}

func (v Value) asMap() map[string]any {
	return map[string]any{"value": v.Value, "details": v.Details}
}

// Kind selects how a Container exposes its records to name lookups.
type Kind int

const (
	// KindParameters containers hold {value, details} records; a name ending
	// at a record yields the whole Value.
	KindParameters Kind = iota
	// KindVariables containers hold plain values; a name ending at a record
	// yields Value.Value.
	KindVariables
)

func (k Kind) root() string {
	if k == KindVariables {
		return RootVariables
	}
	return RootParameter
}

// Node is one element of the container tree. A node can carry a record, have
// children, or both.
type Node struct {
	record   *Value
	children map[string]*Node
}

func (n *Node) child(key string, create bool) *Node {
	if c, ok := n.children[key]; ok {
		return c
	}
	if !create {
		return nil
	}
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	c := &Node{}
	n.children[key] = c
	return c
}

// Container is a tree of parameter nodes. It is not safe for concurrent
// writes; one builder writes one name per rule pass.
type Container struct {
	kind Kind
	root *Node
}

// NewContainer returns an empty parameters container.
func NewContainer() *Container {
	return &Container{kind: KindParameters, root: &Node{}}
}

// NewVariables builds a variables container from a flat or nested mapping.
// Top-level keys become records; nested maps stay addressable through
// dotted access into the record value.
func NewVariables(vars map[string]any) *Container {
	c := &Container{kind: KindVariables, root: &Node{}}
	for k, v := range vars {
		c.root.child(k, true).record = &Value{Value: v}
	}
	return c
}

// Kind returns the container kind.
func (c *Container) Kind() Kind { return c.kind }

// Set stores v under the fully-qualified name, creating intermediate nodes.
//
// When to use:
//   - Builders publish their result through Set once Build succeeded.
//
// Edge cases:
//   - The record is replaced as a whole; there is no partial update of value
//     or details.
//   - The root of fqName must match the container kind ($parameter for
//     parameters, $variables for variables). Index accessors are rejected.
//
// Errors:
//   - ErrInvalidName on a malformed or foreign name.
func (c *Container) Set(fqName string, v Value) error {
	n, err := parseName(fqName)
	if err != nil {
		return err
	}
	if n.root != c.kind.root() {
		return fmt.Errorf("%w: %q does not belong to a %s container", ErrInvalidName, fqName, c.kind.root())
	}
	if len(n.path) == 0 {
		return fmt.Errorf("%w: %q names the root", ErrInvalidName, fqName)
	}

	node := c.root
	for _, s := range n.path {
		if len(s.index) > 0 {
			return fmt.Errorf("%w: index accessor in write path %q", ErrInvalidName, fqName)
		}
		node = node.child(s.key, true)
	}

	rec := Value{Value: v.Value}
	if v.Details != nil {
		rec.Details = make(map[string]any, len(v.Details))
		for k, d := range v.Details {
			rec.Details[k] = d
		}
	}
	node.record = &rec
	return nil
}

// Get returns whatever fqName addresses: a whole Value, a sub-value of a
// record, or a subtree rendered as map[string]any.
func (c *Container) Get(fqName string) (any, error) {
	n, err := parseName(fqName)
	if err != nil {
		return nil, err
	}
	if n.root != c.kind.root() {
		return nil, fmt.Errorf("%w: %q does not belong to a %s container", ErrInvalidName, fqName, c.kind.root())
	}
	return c.lookup(n)
}

// Has reports whether fqName resolves.
func (c *Container) Has(fqName string) bool {
	_, err := c.Get(fqName)
	return err == nil
}

func (c *Container) lookup(n name) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, n)
	}
	node := c.root
	for i, s := range n.path {
		if next := node.child(s.key, false); next != nil {
			node = next
			if len(s.index) == 0 {
				continue
			}
			v, err := indexValue(c.view(node), s.index)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", n, err)
			}
			return descend(v, n.path[i+1:], n)
		}
		if node.record != nil {
			return descend(c.recordView(node.record), n.path[i:], n)
		}
		return nil, fmt.Errorf("%w: %s (no %q)", ErrParameterNotFound, n, s.key)
	}
	if node == c.root && len(n.path) == 0 {
		return c.subtree(node), nil
	}
	return c.view(node), nil
}

// view renders a node reached by the final path segment.
func (c *Container) view(n *Node) any {
	if n.record != nil {
		if c.kind == KindVariables {
			return n.record.Value
		}
		return *n.record
	}
	return c.subtree(n)
}

// recordView is what further path segments descend into.
func (c *Container) recordView(v *Value) any {
	if c.kind == KindVariables {
		return v.Value
	}
	return v.asMap()
}

func (c *Container) subtree(n *Node) map[string]any {
	out := make(map[string]any, len(n.children))
	for k, ch := range n.children {
		out[k] = c.view(ch)
	}
	return out
}

// Names returns the fully-qualified names of all records, sorted.
func (c *Container) Names() []string {
	var out []string
	var walk func(prefix string, n *Node)
	walk = func(prefix string, n *Node) {
		if n.record != nil {
			out = append(out, prefix)
		}
		for k, ch := range n.children {
			walk(prefix+"."+k, ch)
		}
	}
	for k, ch := range c.root.children {
		walk(c.kind.root()+"."+k, ch)
	}
	sort.Strings(out)
	return out
}

// Records returns every record keyed by fully-qualified name.
func (c *Container) Records() map[string]Value {
	out := make(map[string]Value)
	for _, fq := range c.Names() {
		node := c.root
		for _, k := range strings.Split(fq, ".")[1:] {
			node = node.child(k, false)
		}
		out[fq] = *node.record
	}
	return out
}

// Len returns the number of records.
func (c *Container) Len() int { return len(c.Names()) }
