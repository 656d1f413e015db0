// Package netlist models a dataflow circuit as a directed multigraph of
// components connected by handshake channels. Components and channels live
// in arenas indexed by stable integer ids; the only mutations are
// annotating channels and splicing new buffer components into them.
package netlist

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/dot"
)

// ComponentID indexes the component arena
type ComponentID int

// ChannelID indexes the channel arena
type ChannelID int

// NoChannel marks an unconnected port
const NoChannel ChannelID = -1

// ErrUnknownComponent is returned for ids or names not in the netlist
var ErrUnknownComponent = errors.New("netlist: unknown component")

// ErrUnknownChannel is returned for channel ids not in the netlist
var ErrUnknownChannel = errors.New("netlist: unknown channel")

// ErrPortInUse is returned when connecting a port that already has a channel
var ErrPortInUse = errors.New("netlist: port already connected")

// Port is one numbered input or output of a component
type Port struct {
	Index int    // 1-based
	Width int    // bits; 0 is a control (token only) port
	Tag   string // annotation between index and width, e.g. "?" or "+"
	Extra string // annotation after the width, e.g. "*c0"
}

// BufferSpec describes an elastic buffer
type BufferSpec struct {
	Slots       int
	Transparent bool
}

// Opaque reports whether the buffer registers its data path
func (b BufferSpec) Opaque() bool {
	return !b.Transparent
}

func (b BufferSpec) String() string {
	kind := "opaque"
	if b.Transparent {
		kind = "transparent"
	}
	return fmt.Sprintf("%d-slot %s", b.Slots, kind)
}

// Component is one node of the netlist
type Component struct {
	ID    ComponentID
	Name  string
	Kind  Kind
	Block int

	// TypeName is the DOT type the component was read with, e.g. "Fifo"
	TypeName string

	Op           string     // Operator mnemonic
	ControlMerge bool       // Merge acting as the block's control merge
	Control      bool       // Start/End carrying control tokens only
	Value        string     // Constant literal
	Memory       string     // MemoryController/LSQ interface name
	Buffer       BufferSpec // Buffer payload

	Delay   float64
	Latency int
	II      int

	Inputs  []Port
	Outputs []Port

	Attrs dot.Attrs

	in  []ChannelID
	out []ChannelID
}

// Registered reports whether the component cuts combinational paths
func (c *Component) Registered() bool {
	switch {
	case c.Latency > 0:
		return true
	case c.Kind == Buffer:
		return c.Buffer.Opaque()
	case c.Kind.IsMemory():
		return true
	}
	return false
}

// ChannelKind distinguishes data from control channels
type ChannelKind int

const (
	Data ChannelKind = iota
	Control
)

func (k ChannelKind) String() string {
	if k == Control {
		return "control"
	}
	return "data"
}

// Channel is a directed handshake connection
type Channel struct {
	ID      ChannelID
	Src     ComponentID
	SrcPort int
	Dst     ComponentID
	DstPort int
	Kind    ChannelKind
	Width   int

	// MinSlots forces a buffer of at least this capacity on the channel
	MinSlots int

	// Buffer is set by a successful solve; nil means no buffer
	Buffer *BufferSpec

	Attrs dot.Attrs
}

// Netlist is the component graph
type Netlist struct {
	Name string

	comps  []*Component
	chans  []*Channel
	byName map[string]ComponentID

	blocks     *BlockGraph
	graphAttrs dot.Attrs
	nextBuffer int

	err error
	log *slog.Logger
}

// New returns an empty netlist
func New(name string) *Netlist {
	return &Netlist{
		Name:   name,
		byName: make(map[string]ComponentID),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// HasError reports whether loading failed
func (n *Netlist) HasError() bool {
	return n.err != nil
}

// Error returns the load error message, or ""
func (n *Netlist) Error() string {
	if n.err == nil {
		return ""
	}
	return n.err.Error()
}

// Err returns the load error
func (n *Netlist) Err() error {
	return n.err
}

// AddComponent appends c to the arena and returns its id. Inputs and
// Outputs must be set; their channels start unconnected.
func (n *Netlist) AddComponent(c Component) (ComponentID, error) {
	if c.Name == "" {
		return 0, fmt.Errorf("netlist: component without name")
	}
	if _, dup := n.byName[c.Name]; dup {
		return 0, fmt.Errorf("netlist: duplicate component %q", c.Name)
	}
	if c.II == 0 {
		c.II = 1
	}
	if c.TypeName == "" {
		c.TypeName = c.Kind.String()
		if c.ControlMerge {
			c.TypeName = "CntrlMerge"
		}
	}
	id := ComponentID(len(n.comps))
	comp := c
	comp.ID = id
	comp.in = fill(len(c.Inputs))
	comp.out = fill(len(c.Outputs))
	n.comps = append(n.comps, &comp)
	n.byName[c.Name] = id
	return id, nil
}

func fill(n int) []ChannelID {
	ids := make([]ChannelID, n)
	for i := range ids {
		ids[i] = NoChannel
	}
	return ids
}

// Connect adds a channel from output port srcPort of src to input port
// dstPort of dst. Ports are 1-based.
func (n *Netlist) Connect(src ComponentID, srcPort int, dst ComponentID, dstPort int) (ChannelID, error) {
	s, err := n.lookup(src)
	if err != nil {
		return 0, err
	}
	d, err := n.lookup(dst)
	if err != nil {
		return 0, err
	}
	if srcPort < 1 || srcPort > len(s.out) {
		return 0, fmt.Errorf("netlist: %s has no output %d", s.Name, srcPort)
	}
	if dstPort < 1 || dstPort > len(d.in) {
		return 0, fmt.Errorf("netlist: %s has no input %d", d.Name, dstPort)
	}
	if s.out[srcPort-1] != NoChannel {
		return 0, fmt.Errorf("%w: %s out%d", ErrPortInUse, s.Name, srcPort)
	}
	if d.in[dstPort-1] != NoChannel {
		return 0, fmt.Errorf("%w: %s in%d", ErrPortInUse, d.Name, dstPort)
	}

	width := s.Outputs[srcPort-1].Width
	kind := Data
	if width == 0 {
		kind = Control
	}
	id := ChannelID(len(n.chans))
	n.chans = append(n.chans, &Channel{
		ID:      id,
		Src:     src,
		SrcPort: srcPort,
		Dst:     dst,
		DstPort: dstPort,
		Kind:    kind,
		Width:   width,
	})
	s.out[srcPort-1] = id
	d.in[dstPort-1] = id
	return id, nil
}

func (n *Netlist) lookup(id ComponentID) (*Component, error) {
	if id < 0 || int(id) >= len(n.comps) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownComponent, id)
	}
	return n.comps[id], nil
}

// Component returns the component with the given id, or nil
func (n *Netlist) Component(id ComponentID) *Component {
	c, err := n.lookup(id)
	if err != nil {
		return nil
	}
	return c
}

// ComponentByName finds a component by name
func (n *Netlist) ComponentByName(name string) (*Component, bool) {
	id, ok := n.byName[name]
	if !ok {
		return nil, false
	}
	return n.comps[id], true
}

// Components returns all components in id order
func (n *Netlist) Components() []*Component {
	return append([]*Component(nil), n.comps...)
}

// Channel returns the channel with the given id, or nil
func (n *Netlist) Channel(id ChannelID) *Channel {
	if id < 0 || int(id) >= len(n.chans) {
		return nil
	}
	return n.chans[id]
}

// Channels returns all channels in id order
func (n *Netlist) Channels() []*Channel {
	return append([]*Channel(nil), n.chans...)
}

// NumComponents returns the arena size
func (n *Netlist) NumComponents() int {
	return len(n.comps)
}

// NumChannels returns the channel arena size
func (n *Netlist) NumChannels() int {
	return len(n.chans)
}

// GraphAttrs returns the top-level DOT attributes kept from the input
func (n *Netlist) GraphAttrs() *dot.Attrs {
	return &n.graphAttrs
}
