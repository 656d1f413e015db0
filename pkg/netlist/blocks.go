package netlist

import (
	"fmt"
	"sort"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/dot"
)

// BlockEdge is a control-flow edge between basic blocks
type BlockEdge struct {
	From, To int
	Freq     float64
	Attrs    dot.Attrs
}

// Key returns the (From, To) pair
func (e BlockEdge) Key() BlockEdgeKey {
	return BlockEdgeKey{From: e.From, To: e.To}
}

// BasicBlockNode is one vertex of the block graph with its adjacent edges
type BasicBlockNode struct {
	ID    int
	Name  string
	Succs []BlockEdge
	Preds []BlockEdge
}

// BlockGraph is the basic-block supergraph
type BlockGraph struct {
	ids     []int
	names   map[int]string
	edges   []BlockEdge
	byKey   map[BlockEdgeKey]int
	derived bool
}

// NewBlockGraph returns an empty block graph
func NewBlockGraph() *BlockGraph {
	return &BlockGraph{
		names: make(map[int]string),
		byKey: make(map[BlockEdgeKey]int),
	}
}

// AddBlock adds block id; adding an existing block is a no-op
func (g *BlockGraph) AddBlock(id int, name string) {
	if _, ok := g.names[id]; ok {
		return
	}
	if name == "" {
		name = fmt.Sprintf("block%d", id)
	}
	g.names[id] = name
	g.ids = append(g.ids, id)
	sort.Ints(g.ids)
}

// AddEdge adds a control-flow edge, creating missing blocks. Repeated edges
// between the same pair accumulate their frequency.
func (g *BlockGraph) AddEdge(from, to int, freq float64) *BlockEdge {
	g.AddBlock(from, "")
	g.AddBlock(to, "")
	key := BlockEdgeKey{From: from, To: to}
	if i, ok := g.byKey[key]; ok {
		g.edges[i].Freq += freq
		return &g.edges[i]
	}
	g.byKey[key] = len(g.edges)
	g.edges = append(g.edges, BlockEdge{From: from, To: to, Freq: freq})
	return &g.edges[len(g.edges)-1]
}

// Has reports whether block id exists
func (g *BlockGraph) Has(id int) bool {
	_, ok := g.names[id]
	return ok
}

// Blocks returns the sorted block ids
func (g *BlockGraph) Blocks() []int {
	return append([]int(nil), g.ids...)
}

// Edges returns the edges in insertion order
func (g *BlockGraph) Edges() []BlockEdge {
	return append([]BlockEdge(nil), g.edges...)
}

// Derived reports whether the graph was synthesised from channels rather
// than loaded
func (g *BlockGraph) Derived() bool {
	return g.derived
}

// Freq returns the frequency of edge from->to, or 0
func (g *BlockGraph) Freq(from, to int) float64 {
	if i, ok := g.byKey[BlockEdgeKey{From: from, To: to}]; ok {
		return g.edges[i].Freq
	}
	return 0
}

// MaxFreq returns the largest edge frequency, or 0 for an edgeless graph
func (g *BlockGraph) MaxFreq() float64 {
	var m float64
	for _, e := range g.edges {
		m = max(m, e.Freq)
	}
	return m
}

// Node returns block id with its successor and predecessor edges
func (g *BlockGraph) Node(id int) (BasicBlockNode, bool) {
	name, ok := g.names[id]
	if !ok {
		return BasicBlockNode{}, false
	}
	node := BasicBlockNode{ID: id, Name: name}
	for _, e := range g.edges {
		if e.From == id {
			node.Succs = append(node.Succs, e)
		}
		if e.To == id {
			node.Preds = append(node.Preds, e)
		}
	}
	return node, true
}

// Cycles enumerates the elementary cycles of the block graph as edge key
// sequences. limit <= 0 means unlimited.
func (g *BlockGraph) Cycles(limit int) ([][]BlockEdgeKey, error) {
	pos := make(map[int]int, len(g.ids))
	for i, id := range g.ids {
		pos[id] = i
	}
	adj := make([][]arc, len(g.ids))
	for i, e := range g.edges {
		adj[pos[e.From]] = append(adj[pos[e.From]], arc{id: i, to: pos[e.To]})
	}

	var cycles [][]BlockEdgeKey
	err := enumerateCycles(adj, limit, func(path []int) {
		keys := make([]BlockEdgeKey, len(path))
		for i, idx := range path {
			keys[i] = g.edges[idx].Key()
		}
		cycles = append(cycles, keys)
	})
	if err != nil {
		return nil, err
	}
	return cycles, nil
}

// Order ranks blocks by breadth-first distance from start. Blocks not
// reachable from start are ranked after all reachable ones in id order.
func (g *BlockGraph) Order(start int) map[int]int {
	succs := make(map[int][]int)
	for _, e := range g.edges {
		succs[e.From] = append(succs[e.From], e.To)
	}
	for _, s := range succs {
		sort.Ints(s)
	}

	rank := make(map[int]int, len(g.ids))
	next := 0
	queue := []int{start}
	if g.Has(start) {
		rank[start] = next
		next++
	} else {
		queue = nil
	}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, s := range succs[b] {
			if _, seen := rank[s]; !seen {
				rank[s] = next
				next++
				queue = append(queue, s)
			}
		}
	}
	for _, id := range g.ids {
		if _, seen := rank[id]; !seen {
			rank[id] = next
			next++
		}
	}
	return rank
}

// SetBlockGraph attaches an explicitly loaded block graph
func (n *Netlist) SetBlockGraph(g *BlockGraph) {
	n.blocks = g
}

// HasBlockGraph reports whether a block graph was loaded
func (n *Netlist) HasBlockGraph() bool {
	return n.blocks != nil
}

// BlockGraph returns the loaded block graph, or one derived from the
// cross-block channels with unit frequency.
func (n *Netlist) BlockGraph() *BlockGraph {
	if n.blocks != nil {
		return n.blocks
	}
	g := NewBlockGraph()
	g.derived = true
	for _, b := range n.Blocks() {
		g.AddBlock(b, "")
	}
	groups := n.CrossBlockChannels()
	for _, key := range SortedKeys(groups) {
		g.AddEdge(key.From, key.To, 1)
	}
	return g
}
