package netlist

import (
	"sort"
)

// InChannels returns the channels feeding id, in input port order. Ports
// without a channel are reported as NoChannel.
func (n *Netlist) InChannels(id ComponentID) []ChannelID {
	c := n.Component(id)
	if c == nil {
		return nil
	}
	return append([]ChannelID(nil), c.in...)
}

// OutChannels returns the channels driven by id, in output port order
func (n *Netlist) OutChannels(id ComponentID) []ChannelID {
	c := n.Component(id)
	if c == nil {
		return nil
	}
	return append([]ChannelID(nil), c.out...)
}

// InChannel returns the channel on input port (1-based), or NoChannel
func (n *Netlist) InChannel(id ComponentID, port int) ChannelID {
	c := n.Component(id)
	if c == nil || port < 1 || port > len(c.in) {
		return NoChannel
	}
	return c.in[port-1]
}

// OutChannel returns the channel on output port (1-based), or NoChannel
func (n *Netlist) OutChannel(id ComponentID, port int) ChannelID {
	c := n.Component(id)
	if c == nil || port < 1 || port > len(c.out) {
		return NoChannel
	}
	return c.out[port-1]
}

// Preds returns the source components of id's connected inputs, in port order
func (n *Netlist) Preds(id ComponentID) []ComponentID {
	var preds []ComponentID
	for _, ch := range n.InChannels(id) {
		if ch != NoChannel {
			preds = append(preds, n.chans[ch].Src)
		}
	}
	return preds
}

// Succs returns the destination components of id's connected outputs, in
// port order
func (n *Netlist) Succs(id ComponentID) []ComponentID {
	var succs []ComponentID
	for _, ch := range n.OutChannels(id) {
		if ch != NoChannel {
			succs = append(succs, n.chans[ch].Dst)
		}
	}
	return succs
}

// Blocks returns the sorted basic block ids that own components
func (n *Netlist) Blocks() []int {
	seen := make(map[int]bool)
	var blocks []int
	for _, c := range n.comps {
		if !seen[c.Block] {
			seen[c.Block] = true
			blocks = append(blocks, c.Block)
		}
	}
	sort.Ints(blocks)
	return blocks
}

// ComponentsInBlock returns the components of block b in id order
func (n *Netlist) ComponentsInBlock(b int) []ComponentID {
	var ids []ComponentID
	for _, c := range n.comps {
		if c.Block == b {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// ControlMerges returns the control merge points of block b: control
// merges and the Start component, which enters the entry block
func (n *Netlist) ControlMerges(b int) []ComponentID {
	var ids []ComponentID
	for _, c := range n.comps {
		if c.Block == b && (c.Kind == Start || c.Kind == Merge && c.ControlMerge) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// ControlMerge returns the unique control merge of block b
func (n *Netlist) ControlMerge(b int) (ComponentID, bool) {
	ids := n.ControlMerges(b)
	if len(ids) != 1 {
		return 0, false
	}
	return ids[0], true
}

// BlockEdgeKey identifies an ordered pair of distinct basic blocks
type BlockEdgeKey struct {
	From, To int
}

// ChannelBlocks returns the blocks of a channel's endpoints
func (n *Netlist) ChannelBlocks(id ChannelID) (from, to int) {
	ch := n.chans[id]
	return n.comps[ch.Src].Block, n.comps[ch.Dst].Block
}

// IsIntraBlock reports whether both endpoints lie in the same block
func (n *Netlist) IsIntraBlock(id ChannelID) bool {
	from, to := n.ChannelBlocks(id)
	return from == to
}

// ChannelsByBlock groups intra-block channels by their block
func (n *Netlist) ChannelsByBlock() map[int][]ChannelID {
	groups := make(map[int][]ChannelID)
	for _, ch := range n.chans {
		from, to := n.ChannelBlocks(ch.ID)
		if from == to {
			groups[from] = append(groups[from], ch.ID)
		}
	}
	return groups
}

// CrossBlockChannels groups inter-block channels by (source, destination)
// block pair
func (n *Netlist) CrossBlockChannels() map[BlockEdgeKey][]ChannelID {
	groups := make(map[BlockEdgeKey][]ChannelID)
	for _, ch := range n.chans {
		from, to := n.ChannelBlocks(ch.ID)
		if from != to {
			key := BlockEdgeKey{From: from, To: to}
			groups[key] = append(groups[key], ch.ID)
		}
	}
	return groups
}

// SortedKeys returns the keys of a cross-block grouping in (From, To) order
func SortedKeys(groups map[BlockEdgeKey][]ChannelID) []BlockEdgeKey {
	keys := make([]BlockEdgeKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].From != keys[j].From {
			return keys[i].From < keys[j].From
		}
		return keys[i].To < keys[j].To
	})
	return keys
}
