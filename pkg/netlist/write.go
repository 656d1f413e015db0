package netlist

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/dot"
)

// WriteDot serialises the netlist as DOT, grouping components of each
// basic block in a cluster subgraph. Annotated channels carry slots and
// transparent attributes.
func (n *Netlist) WriteDot(w io.Writer) error {
	dw := dot.NewWriter(w)
	dw.Open("Digraph G")
	writeGraphAttrs(dw, &n.graphAttrs)

	for _, b := range n.Blocks() {
		dw.Open("subgraph cluster_%d", b)
		dw.Line("color = %s;", dot.Quote("darkgreen"))
		dw.Line("label = %s;", dot.Quote(fmt.Sprintf("block%d", b)))
		for _, id := range n.ComponentsInBlock(b) {
			c := n.comps[id]
			dw.Line("%s%s;", dot.Quote(c.Name), dot.FormatAttrs(componentAttrs(c)))
		}
		dw.Close()
	}

	for _, ch := range n.chans {
		dw.Line("%s -> %s%s;",
			dot.Quote(n.comps[ch.Src].Name),
			dot.Quote(n.comps[ch.Dst].Name),
			dot.FormatAttrs(channelAttrs(ch)))
	}
	dw.Close()

	if err := dw.Err(); err != nil {
		return fmt.Errorf("netlist: write: %w", err)
	}
	return nil
}

func writeGraphAttrs(dw *dot.Writer, attrs *dot.Attrs) {
	if attrs.Len() == 0 {
		dw.Line("splines=spline;")
		return
	}
	for _, key := range attrs.Keys() {
		dw.Line("%s=%s;", key, dotValue(attrs.Lookup(key)))
	}
}

var bareRe = regexp.MustCompile(`^(?:[a-zA-Z_][a-zA-Z0-9_]*|-?(?:\.[0-9]+|[0-9]+(?:\.[0-9]*)?))$`)

func dotValue(v string) string {
	if bareRe.MatchString(v) {
		return v
	}
	return dot.Quote(v)
}

func componentAttrs(c *Component) []dot.KV {
	kvs := []dot.KV{dot.Q("type", c.TypeName), dot.N("bbID", c.Block)}
	if c.Op != "" {
		kvs = append(kvs, dot.Q("op", c.Op))
	}
	if c.Value != "" {
		kvs = append(kvs, dot.Q("value", c.Value))
	}
	if c.Control {
		kvs = append(kvs, dot.Q("control", "true"))
	}
	if c.Memory != "" {
		kvs = append(kvs, dot.Q("memory", c.Memory))
	}
	if len(c.Inputs) > 0 {
		kvs = append(kvs, dot.Q("in", formatPorts("in", c.Inputs)))
	}
	if len(c.Outputs) > 0 {
		kvs = append(kvs, dot.Q("out", formatPorts("out", c.Outputs)))
	}
	kvs = append(kvs, dot.N("delay", c.Delay), dot.N("latency", c.Latency), dot.N("II", c.II))
	if c.Kind == Buffer {
		kvs = append(kvs, dot.N("slots", c.Buffer.Slots), dot.Q("transparent", fmt.Sprint(c.Buffer.Transparent)))
	}
	for _, key := range c.Attrs.Keys() {
		kvs = append(kvs, dot.Q(key, c.Attrs.Lookup(key)))
	}
	return kvs
}

func formatPorts(side string, ports []Port) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%s%d%s:%d%s", side, p.Index, p.Tag, p.Width, p.Extra)
	}
	return strings.Join(parts, " ")
}

func channelAttrs(ch *Channel) []dot.KV {
	var kvs []dot.KV
	for _, key := range ch.Attrs.Keys() {
		kvs = append(kvs, dot.Q(key, ch.Attrs.Lookup(key)))
	}
	kvs = append(kvs, dot.Q("from", fmt.Sprintf("out%d", ch.SrcPort)), dot.Q("to", fmt.Sprintf("in%d", ch.DstPort)))
	if ch.MinSlots > 0 {
		kvs = append(kvs, dot.N("minslots", ch.MinSlots))
	}
	if ch.Buffer != nil {
		kvs = append(kvs, dot.N("slots", ch.Buffer.Slots), dot.Q("transparent", fmt.Sprint(ch.Buffer.Transparent)))
	}
	return kvs
}

// WriteBlocksDot serialises the block graph
func (n *Netlist) WriteBlocksDot(w io.Writer) error {
	g := n.BlockGraph()
	dw := dot.NewWriter(w)
	dw.Open("Digraph G")
	dw.Line("splines=spline;")
	for _, b := range g.Blocks() {
		dw.Line("%s;", dot.Quote(g.names[b]))
	}
	for _, e := range g.Edges() {
		var kvs []dot.KV
		for _, key := range e.Attrs.Keys() {
			kvs = append(kvs, dot.Q(key, e.Attrs.Lookup(key)))
		}
		kvs = append(kvs, dot.N("freq", e.Freq))
		dw.Line("%s -> %s%s;", dot.Quote(g.names[e.From]), dot.Quote(g.names[e.To]), dot.FormatAttrs(kvs))
	}
	dw.Close()

	if err := dw.Err(); err != nil {
		return fmt.Errorf("netlist: write blocks: %w", err)
	}
	return nil
}
