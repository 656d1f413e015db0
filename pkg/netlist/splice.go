package netlist

import (
	"fmt"
)

// Annotate records a solved buffer decision on a channel without changing
// the graph
func (n *Netlist) Annotate(id ChannelID, spec BufferSpec) error {
	ch := n.Channel(id)
	if ch == nil {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	s := spec
	ch.Buffer = &s
	return nil
}

// ClearAnnotations removes every buffer annotation
func (n *Netlist) ClearAnnotations() {
	for _, ch := range n.chans {
		ch.Buffer = nil
	}
}

// InsertBuffer splices a Buffer component into channel id. The channel is
// redirected into the buffer and a new channel carries the buffer output to
// the original destination port. No other component, port or channel is
// touched. It returns the new component and the new downstream channel.
func (n *Netlist) InsertBuffer(id ChannelID, spec BufferSpec, delay float64) (ComponentID, ChannelID, error) {
	ch := n.Channel(id)
	if ch == nil {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	if spec.Slots < 1 {
		return 0, 0, fmt.Errorf("netlist: buffer on channel %d needs at least one slot", id)
	}

	src := n.comps[ch.Src]
	bufID, err := n.AddComponent(Component{
		Name:     n.bufferName(),
		Kind:     Buffer,
		TypeName: "Buffer",
		Block:    src.Block,
		Buffer:   spec,
		Delay:    delay,
		Inputs:   []Port{{Index: 1, Width: ch.Width}},
		Outputs:  []Port{{Index: 1, Width: ch.Width}},
	})
	if err != nil {
		return 0, 0, err
	}
	buf := n.comps[bufID]

	dst, dstPort := ch.Dst, ch.DstPort
	n.comps[dst].in[dstPort-1] = NoChannel

	ch.Dst, ch.DstPort = bufID, 1
	ch.Buffer = nil
	buf.in[0] = id

	downID, err := n.Connect(bufID, 1, dst, dstPort)
	if err != nil {
		return 0, 0, err
	}
	down := n.chans[downID]
	for _, key := range ch.Attrs.Keys() {
		down.Attrs.Set(key, ch.Attrs.Lookup(key))
	}

	n.log.Debug("buffer inserted",
		"buffer", buf.Name,
		"channel", id,
		"from", src.Name,
		"to", n.comps[dst].Name,
		"slots", spec.Slots,
		"transparent", spec.Transparent)
	return bufID, downID, nil
}

func (n *Netlist) bufferName() string {
	for {
		name := fmt.Sprintf("Buffer_%d", n.nextBuffer)
		n.nextBuffer++
		if _, taken := n.byName[name]; !taken {
			return name
		}
	}
}
