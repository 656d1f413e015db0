package netlist

import (
	"fmt"
)

// Validate checks the structural invariants of the netlist: contiguous
// port numbering, channel endpoints that reference existing ports, at most
// one channel per port and at most one control merge per block.
func (n *Netlist) Validate() error {
	for _, c := range n.comps {
		if err := checkPorts(c, "in", c.Inputs); err != nil {
			return err
		}
		if err := checkPorts(c, "out", c.Outputs); err != nil {
			return err
		}
	}

	for _, ch := range n.chans {
		src, dst := n.Component(ch.Src), n.Component(ch.Dst)
		if src == nil || dst == nil {
			return &LoadError{Msg: fmt.Sprintf("channel %d has a dangling endpoint", ch.ID)}
		}
		if ch.SrcPort < 1 || ch.SrcPort > len(src.out) || src.out[ch.SrcPort-1] != ch.ID {
			return &LoadError{Msg: fmt.Sprintf("channel %d: %s out%d does not drive it", ch.ID, src.Name, ch.SrcPort)}
		}
		if ch.DstPort < 1 || ch.DstPort > len(dst.in) || dst.in[ch.DstPort-1] != ch.ID {
			return &LoadError{Msg: fmt.Sprintf("channel %d: %s in%d does not receive it", ch.ID, dst.Name, ch.DstPort)}
		}
	}

	for _, b := range n.Blocks() {
		if merges := n.ControlMerges(b); len(merges) > 1 {
			return &LoadError{Msg: fmt.Sprintf("block %d: control-merge point is not unique (%s and %s)",
				b, n.comps[merges[0]].Name, n.comps[merges[1]].Name)}
		}
	}
	return nil
}

func checkPorts(c *Component, side string, ports []Port) error {
	for i, p := range ports {
		if p.Index != i+1 {
			return &LoadError{Msg: fmt.Sprintf("%s: %s ports must be unique and numbered 1..%d", c.Name, side, len(ports))}
		}
	}
	return nil
}
