package buffers

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/netlist"
	"github.com/OpenTraceLab/OpenTraceHLS/pkg/solver"
)

// builderNL assembles netlists for the tests
type builderNL struct {
	t  *testing.T
	nl *netlist.Netlist
}

func newNL(t *testing.T, name string) *builderNL {
	t.Helper()
	return &builderNL{t: t, nl: netlist.New(name)}
}

func ports(n int) []netlist.Port {
	ps := make([]netlist.Port, n)
	for i := range ps {
		ps[i] = netlist.Port{Index: i + 1, Width: 32}
	}
	return ps
}

func (b *builderNL) add(c netlist.Component, ins, outs int) netlist.ComponentID {
	b.t.Helper()
	c.Inputs, c.Outputs = ports(ins), ports(outs)
	id, err := b.nl.AddComponent(c)
	require.NoError(b.t, err)
	return id
}

func (b *builderNL) op(name string, block int, delay float64, latency, ins, outs int) netlist.ComponentID {
	b.t.Helper()
	return b.add(netlist.Component{
		Name: name, Kind: netlist.Operator, Op: "add_op",
		Block: block, Delay: delay, Latency: latency,
	}, ins, outs)
}

func (b *builderNL) connect(src netlist.ComponentID, sp int, dst netlist.ComponentID, dp int) netlist.ChannelID {
	b.t.Helper()
	id, err := b.nl.Connect(src, sp, dst, dp)
	require.NoError(b.t, err)
	return id
}

// ring is A -> B -> A with A in blockA and B in blockB
func ring(t *testing.T, delay float64, latency, blockA, blockB int) (*netlist.Netlist, netlist.ChannelID, netlist.ChannelID) {
	t.Helper()
	b := newNL(t, "ring")
	a := b.op("A", blockA, delay, latency, 1, 1)
	bb := b.op("B", blockB, delay, latency, 1, 1)
	ab := b.connect(a, 1, bb, 1)
	ba := b.connect(bb, 1, a, 1)
	return b.nl, ab, ba
}

// chain is source -> a1 -> ... -> aN -> sink with combinational actors
func chain(t *testing.T, delays ...float64) *netlist.Netlist {
	t.Helper()
	b := newNL(t, "chain")
	ids := make([]netlist.ComponentID, len(delays))
	for i, d := range delays {
		ins, outs := 1, 1
		if i == 0 {
			ins = 0
		}
		if i == len(delays)-1 {
			outs = 0
		}
		ids[i] = b.op(fmt.Sprintf("a%d", i+1), 1, d, 0, ins, outs)
	}
	for i := 1; i < len(ids); i++ {
		b.connect(ids[i-1], 1, ids[i], 1)
	}
	return b.nl
}

// wideRing has two parallel channels in each direction between A in block
// 1 and B in block 2
func wideRing(t *testing.T) *netlist.Netlist {
	t.Helper()
	b := newNL(t, "wide")
	a := b.op("A", 1, 1, 1, 2, 2)
	bb := b.op("B", 2, 1, 1, 2, 2)
	b.connect(a, 1, bb, 1)
	b.connect(a, 2, bb, 2)
	b.connect(bb, 1, a, 1)
	b.connect(bb, 2, a, 2)
	return b.nl
}

func dotOf(t *testing.T, nl *netlist.Netlist) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, nl.WriteDot(&buf))
	return buf.String()
}

func simEngine(nl *netlist.Netlist, opts ...Option) *Engine {
	e := New(nl, append([]Option{WithRegistry(solver.DefaultRegistry(nil))}, opts...)...)
	e.SetSolver("sim")
	return e
}

// fakeClock is advanced explicitly by the test
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
