package netlist

import (
	"errors"
	"fmt"
	"sort"
)

// ErrTooManyCycles is returned when cycle enumeration exceeds its limit
var ErrTooManyCycles = errors.New("netlist: too many elementary cycles")

// Cycle is an elementary cycle given as its channels in traversal order
type Cycle []ChannelID

// Components returns the component at the source of each channel
func (c Cycle) Components(n *Netlist) []ComponentID {
	ids := make([]ComponentID, len(c))
	for i, ch := range c {
		ids[i] = n.chans[ch].Src
	}
	return ids
}

// ElementaryCycles enumerates every elementary cycle of the channel graph.
// Parallel channels yield distinct cycles and a self-loop channel is a
// cycle of length one. limit <= 0 means unlimited.
func (n *Netlist) ElementaryCycles(limit int) ([]Cycle, error) {
	return n.CyclesWithin(nil, limit)
}

// CyclesWithin enumerates the elementary cycles of the subgraph formed by
// the channels for which keep returns true. A nil keep selects all channels.
func (n *Netlist) CyclesWithin(keep func(*Channel) bool, limit int) ([]Cycle, error) {
	adj := make([][]arc, len(n.comps))
	for _, ch := range n.chans {
		if keep != nil && !keep(ch) {
			continue
		}
		adj[ch.Src] = append(adj[ch.Src], arc{id: int(ch.ID), to: int(ch.Dst)})
	}

	var cycles []Cycle
	err := enumerateCycles(adj, limit, func(path []int) {
		c := make(Cycle, len(path))
		for i, id := range path {
			c[i] = ChannelID(id)
		}
		cycles = append(cycles, c)
	})
	if err != nil {
		return nil, err
	}
	return cycles, nil
}

type arc struct {
	id int
	to int
}

// enumerateCycles runs Johnson's algorithm on a multigraph given as
// adjacency lists of arcs. emit receives the arc ids of each cycle and must
// copy them.
func enumerateCycles(adj [][]arc, limit int, emit func([]int)) error {
	j := &johnson{
		adj:     adj,
		blocked: make([]bool, len(adj)),
		b:       make([]map[int]bool, len(adj)),
		inSCC:   make([]bool, len(adj)),
		limit:   limit,
		emit:    emit,
	}
	for s := 0; s < len(adj); s++ {
		comp := leastCyclicSCC(adj, s)
		if comp == nil {
			break
		}
		s = comp[0]
		for i := range j.inSCC {
			j.inSCC[i] = false
		}
		for _, v := range comp {
			j.inSCC[v] = true
			j.blocked[v] = false
			j.b[v] = nil
		}
		j.start = s
		j.circuit(s)
		if j.overflow {
			return fmt.Errorf("%w: limit %d", ErrTooManyCycles, limit)
		}
	}
	return nil
}

type johnson struct {
	adj     [][]arc
	blocked []bool
	b       []map[int]bool
	inSCC   []bool
	path    []int
	start   int

	limit    int
	count    int
	overflow bool
	emit     func([]int)
}

func (j *johnson) circuit(v int) bool {
	found := false
	j.blocked[v] = true
	for _, a := range j.adj[v] {
		if j.overflow {
			return found
		}
		w := a.to
		if !j.inSCC[w] {
			continue
		}
		if w == j.start {
			j.count++
			if j.limit > 0 && j.count > j.limit {
				j.overflow = true
				return found
			}
			j.emit(append(j.path, a.id))
			found = true
		} else if !j.blocked[w] {
			j.path = append(j.path, a.id)
			if j.circuit(w) {
				found = true
			}
			j.path = j.path[:len(j.path)-1]
		}
	}
	if found {
		j.unblock(v)
	} else {
		for _, a := range j.adj[v] {
			w := a.to
			if !j.inSCC[w] {
				continue
			}
			if j.b[w] == nil {
				j.b[w] = make(map[int]bool)
			}
			j.b[w][v] = true
		}
	}
	return found
}

func (j *johnson) unblock(u int) {
	j.blocked[u] = false
	for w := range j.b[u] {
		delete(j.b[u], w)
		if j.blocked[w] {
			j.unblock(w)
		}
	}
}

// leastCyclicSCC returns the strongly connected component containing the
// least vertex >= from that can carry a cycle, with its vertices sorted
// ascending, or nil.
func leastCyclicSCC(adj [][]arc, from int) []int {
	var best []int
	for _, comp := range tarjan(adj, from) {
		if len(comp) == 1 && !hasSelfLoop(adj, comp[0]) {
			continue
		}
		if best == nil || comp[0] < best[0] {
			best = comp
		}
	}
	return best
}

func hasSelfLoop(adj [][]arc, v int) bool {
	for _, a := range adj[v] {
		if a.to == v {
			return true
		}
	}
	return false
}

// tarjan computes the strongly connected components of the subgraph induced
// by vertices >= from. Each component is returned sorted ascending.
func tarjan(adj [][]arc, from int) [][]int {
	n := len(adj)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	var comps [][]int
	next := 0

	var visit func(v int)
	visit = func(v int) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, a := range adj[v] {
			w := a.to
			if w < from {
				continue
			}
			if index[w] == -1 {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Ints(comp)
			comps = append(comps, comp)
		}
	}

	for v := from; v < n; v++ {
		if index[v] == -1 {
			visit(v)
		}
	}
	return comps
}
