package dot

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// Attrs is an ordered attribute map. Keys keep their first-seen order so
// that a reader/writer round trip preserves attribute layout.
type Attrs struct {
	keys   []string
	values map[string]string
}

// Set stores a value, keeping the position of an existing key
func (a *Attrs) Set(key, value string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the value for key
func (a *Attrs) Get(key string) (string, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Lookup returns the value for key or "" when absent
func (a *Attrs) Lookup(key string) string {
	return a.values[key]
}

// Keys returns the keys in insertion order
func (a *Attrs) Keys() []string {
	return append([]string(nil), a.keys...)
}

// Len returns the number of attributes
func (a *Attrs) Len() int {
	return len(a.keys)
}

func (a *Attrs) clone() Attrs {
	var c Attrs
	for _, k := range a.keys {
		c.Set(k, a.values[k])
	}
	return c
}

func (a *Attrs) merge(list []*Attr) {
	for _, attr := range list {
		a.Set(attr.Key.Text(), attr.Text())
	}
}

// Node is a flattened node declaration
type Node struct {
	Name    string
	Attrs   Attrs
	Cluster string // innermost enclosing subgraph, "" at top level
	Pos     lexer.Position
	// Implicit is set for nodes only referenced by edges
	Implicit bool
}

// Edge is a flattened single-hop edge
type Edge struct {
	From, To string
	Attrs    Attrs
	Pos      lexer.Position
}

// Graph is the flattened view of a DOT file: subgraph nesting is resolved,
// edge chains are split into single hops and default attributes applied.
type Graph struct {
	Name     string
	Directed bool
	Attrs    Attrs
	Nodes    []*Node
	Edges    []*Edge

	index map[string]*Node
}

// Node returns the node named name, or nil
func (g *Graph) Node(name string) *Node {
	return g.index[name]
}

type scope struct {
	node    Attrs
	edge    Attrs
	cluster string
}

// Flatten resolves f into a Graph
func Flatten(f *File) *Graph {
	g := &Graph{
		Name:     f.Name(),
		Directed: f.Directed(),
		index:    make(map[string]*Node),
	}
	g.walk(f.Stmts, &scope{})
	return g
}

func (g *Graph) walk(stmts []*Stmt, sc *scope) {
	for _, st := range stmts {
		switch {
		case st.Attr != nil:
			switch strings.ToLower(st.Attr.Target) {
			case "graph":
				if sc.cluster == "" {
					g.Attrs.merge(st.Attr.Attrs)
				}
			case "node":
				sc.node.merge(st.Attr.Attrs)
			case "edge":
				sc.edge.merge(st.Attr.Attrs)
			}
		case st.Subgraph != nil:
			inner := &scope{
				node:    sc.node.clone(),
				edge:    sc.edge.clone(),
				cluster: sc.cluster,
			}
			if st.Subgraph.ID != nil {
				inner.cluster = st.Subgraph.ID.Text()
			}
			g.walk(st.Subgraph.Stmts, inner)
		case st.Element != nil:
			g.element(st.Element, sc)
		}
	}
}

func (g *Graph) element(e *Element, sc *scope) {
	if e.IsAssign() {
		if sc.cluster == "" {
			g.Attrs.Set(e.ID.Text(), e.Value.Text())
		}
		return
	}
	if len(e.Edges) == 0 {
		n := g.declare(e.ID.Text(), e.Pos, sc, false)
		n.Attrs.merge(e.Attrs)
		return
	}
	from := e.ID.Text()
	g.declare(from, e.Pos, sc, true)
	for _, hop := range e.Edges {
		to := hop.To.Text()
		g.declare(to, hop.To.Pos, sc, true)
		edge := &Edge{From: from, To: to, Attrs: sc.edge.clone(), Pos: e.Pos}
		edge.Attrs.merge(e.Attrs)
		g.Edges = append(g.Edges, edge)
		from = to
	}
}

func (g *Graph) declare(name string, pos lexer.Position, sc *scope, implicit bool) *Node {
	if n, ok := g.index[name]; ok {
		if !implicit && n.Implicit {
			n.Implicit = false
			n.Cluster = sc.cluster
			n.Pos = pos
		}
		return n
	}
	n := &Node{
		Name:     name,
		Attrs:    sc.node.clone(),
		Cluster:  sc.cluster,
		Pos:      pos,
		Implicit: implicit,
	}
	g.index[name] = n
	g.Nodes = append(g.Nodes, n)
	return n
}
