package buffers

import (
	"fmt"
	"sort"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/milp"
	"github.com/OpenTraceLab/OpenTraceHLS/pkg/netlist"
)

// builder turns a netlist into a buffer placement MILP.
//
// Every channel c has arrival times tS (at its source) and tD (at its sink)
// in [0, P]. A decision unit owns B (buffer present), R (buffer is opaque)
// and N (slot count); a unit covers one channel, or in the basic-block
// formulations all channels between an ordered pair of blocks.
type builder struct {
	nl     *netlist.Netlist
	cfg    *Config
	period float64
	delay  float64

	p      *milp.Problem
	units  []*unit
	unitOf map[netlist.ChannelID]*unit
	tS, tD []milp.VarID
	obj    []milp.Term
	cycles int
	start  int
	err    error
}

func newBuilder(nl *netlist.Netlist, cfg *Config, period, delay float64) *builder {
	name := nl.Name
	if name == "" {
		name = "buffers"
	}
	return &builder{
		nl:     nl,
		cfg:    cfg,
		period: period,
		delay:  delay,
		p:      milp.NewProblem(name),
		unitOf: make(map[netlist.ChannelID]*unit),
		tS:     make([]milp.VarID, nl.NumChannels()),
		tD:     make([]milp.VarID, nl.NumChannels()),
		start:  -1,
	}
}

func (b *builder) addVar(name string, kind milp.VarKind, lo, hi float64) milp.VarID {
	if b.err != nil {
		return 0
	}
	id, err := b.p.AddVar(name, kind, lo, hi)
	if err != nil {
		b.err = fmt.Errorf("buffers: %w", err)
	}
	return id
}

func (b *builder) constrain(name string, terms []milp.Term, sense milp.Sense, rhs float64) {
	if b.err != nil {
		return
	}
	if err := b.p.AddConstraint(name, terms, sense, rhs); err != nil {
		b.err = fmt.Errorf("buffers: %w", err)
	}
}

// direct builds one unit per channel and constrains every elementary cycle
func (b *builder) direct() error {
	for _, ch := range b.nl.Channels() {
		b.addUnit(fmt.Sprintf("c%d", ch.ID), []netlist.ChannelID{ch.ID})
	}
	b.timing()

	cycles, err := b.nl.ElementaryCycles(b.cfg.MaxCycles)
	if err != nil {
		return fmt.Errorf("buffers: %w", err)
	}
	b.cycleConstraints(cycles)
	return b.finish()
}

// basicBlock keeps per-channel units inside blocks and shares one unit per
// crossed block pair. Cycles inside a block are constrained channel by
// channel, cycles through several blocks once per block-level cycle.
func (b *builder) basicBlock(opts BBOptions, sequential bool) error {
	bg := b.nl.BlockGraph()
	for _, blk := range b.nl.Blocks() {
		if merges := b.nl.ControlMerges(blk); len(merges) > 1 {
			return fmt.Errorf("%w: block %d has %d control merges", ErrModelPrecondition, blk, len(merges))
		}
		if b.nl.HasBlockGraph() && !bg.Has(blk) {
			return fmt.Errorf("%w: block %d is missing from the block graph", ErrModelPrecondition, blk)
		}
	}

	for _, ch := range b.nl.Channels() {
		if b.nl.IsIntraBlock(ch.ID) {
			b.addUnit(fmt.Sprintf("c%d", ch.ID), []netlist.ChannelID{ch.ID})
		}
	}

	groups := b.nl.CrossBlockChannels()
	keys := netlist.SortedKeys(groups)
	shared := make(map[netlist.BlockEdgeKey]*unit, len(keys))
	maxFreq := bg.MaxFreq()
	for _, key := range keys {
		u := b.addUnit("g"+blockTag(key.From)+"_"+blockTag(key.To), groups[key])
		if maxFreq > 0 && b.cfg.FrequencyWeight > 0 {
			w := b.cfg.FrequencyWeight * bg.Freq(key.From, key.To) / maxFreq
			b.obj = append(b.obj, milp.T(w, u.r))
		}
		shared[key] = u
	}
	b.timing()

	intra, err := b.nl.CyclesWithin(func(ch *netlist.Channel) bool {
		return b.nl.IsIntraBlock(ch.ID)
	}, b.cfg.MaxCycles)
	if err != nil {
		return fmt.Errorf("buffers: %w", err)
	}
	b.cycleConstraints(intra)

	// Only block edges crossed by channels can close a channel cycle.
	crossed := netlist.NewBlockGraph()
	for _, blk := range b.nl.Blocks() {
		crossed.AddBlock(blk, "")
	}
	for _, key := range keys {
		crossed.AddEdge(key.From, key.To, 1)
	}
	blockCycles, err := crossed.Cycles(b.cfg.MaxCycles)
	if err != nil {
		return fmt.Errorf("buffers: block graph: %w", err)
	}
	for k, cyc := range blockCycles {
		terms := make([]milp.Term, 0, len(cyc))
		for _, key := range cyc {
			terms = append(terms, milp.T(1, shared[key].r))
		}
		b.constrain(fmt.Sprintf("bblive%d", k), terms, milp.GE, 1)
	}
	b.cycles += len(blockCycles)

	if sequential {
		if err := b.sequential(opts, bg, keys, shared); err != nil {
			return err
		}
	}
	return b.finish()
}

func (b *builder) addUnit(name string, chans []netlist.ChannelID) *unit {
	maxSlots := float64(b.cfg.MaxSlots)
	u := &unit{name: name, channels: chans}
	u.b = b.addVar("B_"+name, milp.Binary, 0, 1)
	u.r = b.addVar("R_"+name, milp.Binary, 0, 1)
	u.n = b.addVar("N_"+name, milp.Integer, 0, maxSlots)

	minSlots := 0
	for _, id := range chans {
		if ms := b.nl.Channel(id).MinSlots; ms > minSlots {
			minSlots = ms
		}
		b.unitOf[id] = u
	}

	b.constrain("opq_"+name, []milp.Term{milp.T(1, u.r), milp.T(-1, u.b)}, milp.LE, 0)
	b.constrain("cap_"+name, []milp.Term{milp.T(1, u.n), milp.T(-1, u.b)}, milp.GE, 0)
	b.constrain("use_"+name, []milp.Term{milp.T(1, u.n), milp.T(-maxSlots, u.b)}, milp.LE, 0)
	if minSlots > 0 {
		b.constrain("min_"+name, []milp.Term{milp.T(1, u.n)}, milp.GE, float64(minSlots))
	}

	size := float64(len(chans))
	b.obj = append(b.obj,
		milp.T(b.cfg.SlotWeight*size, u.n),
		milp.T(b.cfg.RegisterWeight*size, u.r))
	b.units = append(b.units, u)
	return u
}

// timing adds the arrival time variables and the path delay constraints
func (b *builder) timing() {
	P, D := b.period, b.delay
	for _, ch := range b.nl.Channels() {
		name := fmt.Sprintf("c%d", ch.ID)
		b.tS[ch.ID] = b.addVar("tS_"+name, milp.Continuous, 0, P)
		b.tD[ch.ID] = b.addVar("tD_"+name, milp.Continuous, 0, P)
	}

	// A transparent buffer adds D to the path, an opaque one restarts it
	// at D on its output.
	M := P + D
	for _, ch := range b.nl.Channels() {
		name := fmt.Sprintf("c%d", ch.ID)
		u := b.unitOf[ch.ID]
		tS, tD := b.tS[ch.ID], b.tD[ch.ID]
		b.constrain("path_"+name, []milp.Term{
			milp.T(1, tD), milp.T(-1, tS), milp.T(-D, u.b), milp.T(M, u.r),
		}, milp.GE, 0)
		if D > 0 {
			b.constrain("reg_"+name, []milp.Term{milp.T(1, tD), milp.T(-D, u.r)}, milp.GE, 0)
		}
	}

	for _, c := range b.nl.Components() {
		b.componentTiming(c)
	}
}

func (b *builder) componentTiming(c *netlist.Component) {
	ins := connected(b.nl.InChannels(c.ID))
	outs := connected(b.nl.OutChannels(c.ID))
	d := c.Delay

	launch := func(o netlist.ChannelID) {
		if d > 0 {
			b.constrain(fmt.Sprintf("launch_c%d", o), []milp.Term{milp.T(1, b.tS[o])}, milp.GE, d)
		}
	}
	capture := func(a netlist.ChannelID, limit float64) {
		if limit < b.period {
			b.constrain(fmt.Sprintf("capture_c%d", a), []milp.Term{milp.T(1, b.tD[a])}, milp.LE, limit)
		}
	}

	switch {
	case (c.Kind == netlist.Buffer && c.Buffer.Opaque()) || c.Kind.IsMemory():
		for _, o := range outs {
			launch(o)
		}
	case c.Registered():
		for _, a := range ins {
			capture(a, b.period-d)
		}
	default:
		if len(ins) == 0 {
			for _, o := range outs {
				launch(o)
			}
		}
		if len(outs) == 0 {
			for _, a := range ins {
				capture(a, b.period-d)
			}
		}
		for _, a := range ins {
			for _, o := range outs {
				b.constrain(fmt.Sprintf("comb_c%d_c%d", a, o),
					[]milp.Term{milp.T(1, b.tS[o]), milp.T(-1, b.tD[a])}, milp.GE, d)
			}
		}
	}
}

// cycleConstraints requires a register on every cycle that has none and,
// with a target II, bounds the registers a cycle may carry
func (b *builder) cycleConstraints(cycles []netlist.Cycle) {
	for k, cyc := range cycles {
		registered := false
		latency := 0
		for _, id := range cyc.Components(b.nl) {
			c := b.nl.Component(id)
			latency += c.Latency
			if c.Kind == netlist.Buffer && c.Buffer.Opaque() {
				registered = true
				latency++
			}
		}

		seen := make(map[*unit]bool, len(cyc))
		terms := make([]milp.Term, 0, len(cyc))
		for _, ch := range cyc {
			u := b.unitOf[ch]
			if !seen[u] {
				seen[u] = true
				terms = append(terms, milp.T(1, u.r))
			}
		}

		if !registered {
			b.constrain(fmt.Sprintf("live%d", b.cycles+k), terms, milp.GE, 1)
		}
		if b.cfg.TargetII > 0 {
			b.constrain(fmt.Sprintf("ii%d", b.cycles+k), terms, milp.LE, float64(b.cfg.TargetII-latency))
		}
	}
	b.cycles += len(cycles)
}

// sequential ranks blocks from the start block and requires the block
// latency to grow by R along every forward group
func (b *builder) sequential(opts BBOptions, bg *netlist.BlockGraph, keys []netlist.BlockEdgeKey, shared map[netlist.BlockEdgeKey]*unit) error {
	blocks := bg.Blocks()
	if len(blocks) == 0 {
		return nil
	}
	start := opts.StartBlock
	switch {
	case start < 0:
		start = b.autoStart(bg)
	case !bg.Has(start):
		return fmt.Errorf("%w: start block %d does not exist", ErrModelPrecondition, start)
	}
	b.start = start
	rank := bg.Order(start)

	var forward []netlist.BlockEdgeKey
	for _, key := range keys {
		if rank[key.From] < rank[key.To] {
			forward = append(forward, key)
		}
	}

	depth := float64(b.cfg.MaxSequentialDepth)
	if depth == 0 {
		depth = float64(longestPath(forward, rank))
	}

	latency := make(map[int]milp.VarID, len(blocks))
	for _, blk := range blocks {
		hi := depth
		if blk == start {
			hi = 0
		}
		latency[blk] = b.addVar("L_"+blockTag(blk), milp.Continuous, 0, hi)
	}
	for _, key := range forward {
		b.constrain("seq_"+blockTag(key.From)+"_"+blockTag(key.To), []milp.Term{
			milp.T(1, latency[key.To]), milp.T(-1, latency[key.From]), milp.T(-1, shared[key].r),
		}, milp.GE, 0)
	}

	if b.cfg.SequentialWeight > 0 {
		end := b.endBlock(bg, rank)
		b.obj = append(b.obj, milp.T(b.cfg.SequentialWeight, latency[end]))
	}
	return nil
}

// autoStart picks the block of the Start component, else the lowest block
func (b *builder) autoStart(bg *netlist.BlockGraph) int {
	for _, c := range b.nl.Components() {
		if c.Kind == netlist.Start && bg.Has(c.Block) {
			return c.Block
		}
	}
	return bg.Blocks()[0]
}

// endBlock picks the block of the End component, else the last ranked one
func (b *builder) endBlock(bg *netlist.BlockGraph, rank map[int]int) int {
	for _, c := range b.nl.Components() {
		if c.Kind == netlist.End && bg.Has(c.Block) {
			return c.Block
		}
	}
	end, best := 0, -1
	for blk, r := range rank {
		if r > best {
			end, best = blk, r
		}
	}
	return end
}

func (b *builder) finish() error {
	if b.err != nil {
		return b.err
	}
	if err := b.p.SetObjective(b.obj); err != nil {
		return fmt.Errorf("buffers: %w", err)
	}
	return nil
}

// longestPath returns the edge count of the longest path over edges that
// all go from a lower to a higher rank
func longestPath(edges []netlist.BlockEdgeKey, rank map[int]int) int {
	sorted := append([]netlist.BlockEdgeKey(nil), edges...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank[sorted[i].From] < rank[sorted[j].From]
	})
	dist := make(map[int]int)
	longest := 0
	for _, e := range sorted {
		if d := dist[e.From] + 1; d > dist[e.To] {
			dist[e.To] = d
			if d > longest {
				longest = d
			}
		}
	}
	return longest
}

func connected(ids []netlist.ChannelID) []netlist.ChannelID {
	out := ids[:0]
	for _, id := range ids {
		if id != netlist.NoChannel {
			out = append(out, id)
		}
	}
	return out
}

// blockTag formats a block id for use in a variable name
func blockTag(b int) string {
	if b < 0 {
		return fmt.Sprintf("n%d", -b)
	}
	return fmt.Sprintf("%d", b)
}
