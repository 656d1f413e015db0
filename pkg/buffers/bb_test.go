package buffers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/netlist"
	"github.com/OpenTraceLab/OpenTraceHLS/pkg/solver"
)

func TestBasicBlockRing(t *testing.T) {
	nl, _, _ := ring(t, 3, 1, 1, 2)

	m, err := simEngine(nl).AddElasticBuffersBB(context.Background(), 5, 1, BBOptions{StartBlock: -1})
	require.NoError(t, err)
	require.Equal(t, Solved, m.State())
	assert.Equal(t, BasicBlock, m.Formulation())
	assert.Equal(t, -1, m.StartBlock())
	assert.Equal(t, 1, m.Cycles())

	plan := m.Plan()
	require.Len(t, plan, 1)
	assert.False(t, plan[0].Spec.Transparent)

	_, err = m.Instantiate()
	require.NoError(t, err)
	assert.NoError(t, VerifyCycles(nl))
	assert.NoError(t, VerifyTiming(nl, 5))
}

func TestBasicBlockGroupsShareDecision(t *testing.T) {
	nl := wideRing(t)

	m, err := simEngine(nl).AddElasticBuffersBB(context.Background(), 5, 1, BBOptions{StartBlock: -1})
	require.NoError(t, err)
	require.Equal(t, Solved, m.State())

	plan := m.Plan()
	require.Len(t, plan, 2)
	from0, to0 := nl.ChannelBlocks(plan[0].Channel)
	from1, to1 := nl.ChannelBlocks(plan[1].Channel)
	assert.Equal(t, [2]int{from0, to0}, [2]int{from1, to1})
	assert.Equal(t, plan[0].Spec, plan[1].Spec)
	assert.False(t, plan[0].Spec.Transparent)

	_, err = m.Instantiate()
	require.NoError(t, err)
	assert.NoError(t, VerifyCycles(nl))
}

func TestBasicBlockIntraBlockCycles(t *testing.T) {
	b := newNL(t, "mixed")
	a := b.op("A", 1, 1, 1, 1, 2)
	c := b.op("C", 1, 1, 1, 1, 1)
	d := b.op("D", 2, 1, 0, 1, 0)
	b.connect(a, 1, c, 1)
	b.connect(c, 1, a, 1)
	b.connect(a, 2, d, 1)

	m, err := simEngine(b.nl).AddElasticBuffersBB(context.Background(), 5, 1, BBOptions{StartBlock: -1})
	require.NoError(t, err)
	require.Equal(t, Solved, m.State())
	assert.Equal(t, 1, m.Cycles())
	require.Len(t, m.Plan(), 1)
	assert.True(t, b.nl.IsIntraBlock(m.Plan()[0].Channel))
}

func TestBasicBlockMissingFromLoadedGraph(t *testing.T) {
	nl, _, _ := ring(t, 3, 1, 1, 2)
	bg := netlist.NewBlockGraph()
	bg.AddBlock(1, "block1")
	nl.SetBlockGraph(bg)

	_, err := simEngine(nl).AddElasticBuffersBB(context.Background(), 5, 1, BBOptions{StartBlock: -1})
	assert.ErrorIs(t, err, ErrModelPrecondition)
}

func TestSequentialPrefersBackEdge(t *testing.T) {
	nl, forward, back := ring(t, 3, 1, 1, 2)

	m, err := simEngine(nl).AddElasticBuffersBBSC(context.Background(), 5, 1, BBOptions{StartBlock: -1})
	require.NoError(t, err)
	require.Equal(t, Solved, m.State())
	assert.Equal(t, Sequential, m.Formulation())
	assert.Equal(t, 1, m.StartBlock())

	plan := m.Plan()
	require.Len(t, plan, 1)
	assert.Equal(t, back, plan[0].Channel)
	assert.NotEqual(t, forward, plan[0].Channel)
}

func TestSequentialStartBlock(t *testing.T) {
	nl, forward, _ := ring(t, 3, 1, 1, 2)

	m, err := simEngine(nl).AddElasticBuffersBBSC(context.Background(), 5, 1, BBOptions{StartBlock: 2})
	require.NoError(t, err)
	require.Equal(t, Solved, m.State())
	assert.Equal(t, 2, m.StartBlock())

	// starting from block 2 the A -> B channel closes the loop
	plan := m.Plan()
	require.Len(t, plan, 1)
	assert.Equal(t, forward, plan[0].Channel)

	_, err = simEngine(nl).AddElasticBuffersBBSC(context.Background(), 5, 1, BBOptions{StartBlock: 7})
	assert.ErrorIs(t, err, ErrModelPrecondition)
}

func TestSequentialAutoStartUsesEntry(t *testing.T) {
	b := newNL(t, "entry")
	start := b.add(netlist.Component{Name: "start_0", Kind: netlist.Start, Block: 3}, 0, 1)
	x := b.op("X", 3, 1, 0, 1, 1)
	y := b.op("Y", 1, 1, 0, 1, 0)
	b.connect(start, 1, x, 1)
	b.connect(x, 1, y, 1)

	m, err := simEngine(b.nl).AddElasticBuffersBBSC(context.Background(), 5, 1, BBOptions{StartBlock: -1})
	require.NoError(t, err)
	assert.Equal(t, Solved, m.State())
	assert.Equal(t, 3, m.StartBlock())
	assert.Empty(t, m.Plan())
}

func TestSequentialTimeoutKeepsIncumbent(t *testing.T) {
	nl, _, _ := ring(t, 3, 1, 1, 2)

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	reg := solver.DefaultRegistry(nil)
	reg.Register("sim-slow", func() solver.Solver {
		s := solver.NewSim()
		s.Clock = clock.Now
		s.OnIncumbent = func(float64) { clock.Advance(time.Hour) }
		return s
	})
	e := New(nl, WithRegistry(reg))
	e.SetSolver("sim-slow")

	done := make(chan *Model, 1)
	go func() {
		m, err := e.AddElasticBuffersBBSC(context.Background(), 5, 1, BBOptions{StartBlock: -1, Timeout: time.Minute})
		assert.NoError(t, err)
		done <- m
	}()

	var m *Model
	select {
	case m = <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("solve did not honour its time budget")
	}
	require.NotNil(t, m)
	require.Equal(t, TimedOut, m.State())
	assert.True(t, m.HasIncumbent())
	assert.NotEmpty(t, m.Plan())

	_, err := m.Instantiate()
	assert.ErrorIs(t, err, ErrNotSolved)

	require.NoError(t, m.AcceptIncumbent())
	assert.Equal(t, Solved, m.State())
	_, err = m.Instantiate()
	require.NoError(t, err)
	assert.NoError(t, VerifyCycles(nl))
}

func TestTimeoutWithoutIncumbent(t *testing.T) {
	nl, _, _ := ring(t, 3, 1, 1, 2)
	before := dotOf(t, nl)

	reg := solver.DefaultRegistry(nil)
	reg.Register("sim-stuck", func() solver.Solver {
		s := solver.NewSim()
		s.MaxNodes = 1
		return s
	})
	e := New(nl, WithRegistry(reg))
	e.SetSolver("sim-stuck")

	m, err := e.AddElasticBuffersBB(context.Background(), 5, 1, BBOptions{StartBlock: -1, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, TimedOut, m.State())
	assert.False(t, m.HasIncumbent())
	assert.Empty(t, m.Plan())
	assert.ErrorIs(t, m.AcceptIncumbent(), ErrNotSolved)
	assert.Equal(t, before, dotOf(t, nl))
}
