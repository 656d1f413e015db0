package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/milp"
)

const simEps = 1e-9

// Sim is an exact in-process branch and bound for MILPs whose continuous
// part is a system of difference constraints: every constraint touches at
// most two continuous variables, with opposite coefficients when it touches
// two. Discrete variables need finite bounds, continuous variables a finite
// lower bound and non-negative objective coefficients. Buffer placement
// models have exactly this shape.
//
// Each search node propagates the purely discrete constraints, then bounds
// the continuous part with a longest-path relaxation in which every unfixed
// discrete variable takes its least restrictive value.
type Sim struct {
	// Clock returns the current time; nil uses time.Now
	Clock func() time.Time

	// OnIncumbent is called whenever a better solution is found
	OnIncumbent func(objective float64)

	// MaxNodes bounds the search; zero means unlimited. Exhausting it is
	// treated as running out of time.
	MaxNodes int

	nodes int
}

// NewSim returns a sim solver using the wall clock
func NewSim() *Sim {
	return &Sim{}
}

// Name implements Solver
func (s *Sim) Name() string {
	return "sim"
}

// Nodes returns the number of search nodes visited by the last Solve
func (s *Sim) Nodes() int {
	return s.nodes
}

// Solve implements Solver
func (s *Sim) Solve(ctx context.Context, p *milp.Problem, opts Options) *milp.Solution {
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	start := clock()

	m, err := compileSim(p)
	if err != nil {
		return failed(s.Name(), err, "")
	}

	search := &simSearch{
		model:       m,
		ctx:         ctx,
		clock:       clock,
		onIncumbent: s.OnIncumbent,
		maxNodes:    s.MaxNodes,
		best:        math.Inf(1),
	}
	if opts.TimeLimit > 0 {
		search.deadline = start.Add(opts.TimeLimit)
	}

	lo, hi := m.initialDomains()
	search.branch(lo, hi)
	s.nodes = search.nodes

	// without a time budget a cancelled search is a failure, not a timeout
	if search.cancelled && opts.TimeLimit <= 0 {
		return failed(s.Name(), fmt.Errorf("search: %w", ctx.Err()), "")
	}

	sol := &milp.Solution{Backend: s.Name(), Elapsed: clock().Sub(start)}
	switch {
	case search.stopped:
		sol.Status = milp.TimedOut
		if search.incumbent != nil {
			sol.HasIncumbent = true
			sol.Values = search.incumbent
			sol.Objective = search.best
		}
	case search.incumbent != nil:
		sol.Status = milp.Solved
		sol.Values = search.incumbent
		sol.Objective = search.best
	default:
		sol.Status = milp.Infeasible
	}
	return sol
}

// diffRow is x[p] - x[q] + sum(disc) >= rhs over continuous nodes, where
// node 0 is the constant zero and node i+1 is continuous variable cont[i]
type diffRow struct {
	p, q int
	disc []milp.Term
	rhs  float64
}

// discRow is sum(terms) >= rhs over discrete variables only
type discRow struct {
	terms []milp.Term
	rhs   float64
}

type simModel struct {
	nvars int
	cont  []milp.VarID // continuous variables in node order
	node  []int        // VarID -> node index, 0 for discrete variables
	disc  []milp.VarID // discrete variables in VarID order
	vars  []milp.Var

	diffs []diffRow
	discs []discRow
	obj   []milp.Term
}

func compileSim(p *milp.Problem) (*simModel, error) {
	vars := p.Vars()
	m := &simModel{
		nvars: len(vars),
		node:  make([]int, len(vars)),
		vars:  vars,
		obj:   p.Objective(),
	}
	for _, v := range vars {
		if v.Kind.Discrete() {
			if math.IsInf(v.Lo, 0) || math.IsInf(v.Hi, 0) {
				return nil, fmt.Errorf("%w: discrete variable %s is unbounded", ErrUnsupportedProblem, v.Name)
			}
			m.disc = append(m.disc, v.ID)
			continue
		}
		if math.IsInf(v.Lo, 0) {
			return nil, fmt.Errorf("%w: continuous variable %s has no lower bound", ErrUnsupportedProblem, v.Name)
		}
		m.cont = append(m.cont, v.ID)
		n := len(m.cont)
		m.node[v.ID] = n
		m.diffs = append(m.diffs, diffRow{p: n, q: 0, rhs: v.Lo})
		if !math.IsInf(v.Hi, 1) {
			m.diffs = append(m.diffs, diffRow{p: 0, q: n, rhs: -v.Hi})
		}
	}
	for _, t := range m.obj {
		if !vars[t.Var].Kind.Discrete() && t.Coef < 0 {
			return nil, fmt.Errorf("%w: negative objective coefficient on continuous %s", ErrUnsupportedProblem, vars[t.Var].Name)
		}
	}

	for _, c := range p.Constraints() {
		switch c.Sense {
		case milp.GE:
			if err := m.addGE(c.Name, c.Terms, c.RHS); err != nil {
				return nil, err
			}
		case milp.LE:
			if err := m.addGE(c.Name, negate(c.Terms), -c.RHS); err != nil {
				return nil, err
			}
		case milp.EQ:
			if err := m.addGE(c.Name, c.Terms, c.RHS); err != nil {
				return nil, err
			}
			if err := m.addGE(c.Name, negate(c.Terms), -c.RHS); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func negate(terms []milp.Term) []milp.Term {
	out := make([]milp.Term, len(terms))
	for i, t := range terms {
		out[i] = milp.Term{Var: t.Var, Coef: -t.Coef}
	}
	return out
}

func (m *simModel) addGE(name string, terms []milp.Term, rhs float64) error {
	var cont, disc []milp.Term
	for _, t := range terms {
		if m.vars[t.Var].Kind.Discrete() {
			disc = append(disc, t)
		} else {
			cont = append(cont, t)
		}
	}

	switch len(cont) {
	case 0:
		m.discs = append(m.discs, discRow{terms: disc, rhs: rhs})
		return nil
	case 1:
		a := cont[0].Coef
		k := math.Abs(a)
		row := diffRow{disc: scale(disc, 1/k), rhs: rhs / k}
		if a > 0 {
			row.p, row.q = m.node[cont[0].Var], 0
		} else {
			row.p, row.q = 0, m.node[cont[0].Var]
		}
		m.diffs = append(m.diffs, row)
		return nil
	case 2:
		a, b := cont[0].Coef, cont[1].Coef
		if math.Abs(a+b) > simEps*math.Max(1, math.Abs(a)) {
			return fmt.Errorf("%w: constraint %s is not a difference", ErrUnsupportedProblem, name)
		}
		k := math.Abs(a)
		row := diffRow{disc: scale(disc, 1/k), rhs: rhs / k}
		if a > 0 {
			row.p, row.q = m.node[cont[0].Var], m.node[cont[1].Var]
		} else {
			row.p, row.q = m.node[cont[1].Var], m.node[cont[0].Var]
		}
		m.diffs = append(m.diffs, row)
		return nil
	}
	return fmt.Errorf("%w: constraint %s has %d continuous terms", ErrUnsupportedProblem, name, len(cont))
}

func scale(terms []milp.Term, f float64) []milp.Term {
	out := make([]milp.Term, len(terms))
	for i, t := range terms {
		out[i] = milp.Term{Var: t.Var, Coef: t.Coef * f}
	}
	return out
}

// initialDomains returns integer domains indexed by VarID; continuous
// entries are unused
func (m *simModel) initialDomains() (lo, hi []float64) {
	lo = make([]float64, m.nvars)
	hi = make([]float64, m.nvars)
	for _, id := range m.disc {
		v := m.vars[id]
		lo[id] = math.Ceil(v.Lo - 1e-6)
		hi[id] = math.Floor(v.Hi + 1e-6)
	}
	return lo, hi
}

type simSearch struct {
	model       *simModel
	ctx         context.Context
	clock       func() time.Time
	deadline    time.Time
	onIncumbent func(float64)
	maxNodes    int

	nodes     int
	stopped   bool
	cancelled bool
	best      float64
	incumbent []float64
}

func (s *simSearch) expired() bool {
	if s.ctx != nil && s.ctx.Err() != nil {
		s.cancelled = true
		return true
	}
	if s.maxNodes > 0 && s.nodes >= s.maxNodes {
		return true
	}
	return !s.deadline.IsZero() && !s.clock().Before(s.deadline)
}

func (s *simSearch) branch(lo, hi []float64) {
	if s.stopped {
		return
	}
	if s.expired() {
		s.stopped = true
		return
	}
	s.nodes++

	if !s.model.propagate(lo, hi) {
		return
	}
	x, contObj, ok := s.model.relax(lo, hi)
	if !ok {
		return
	}
	bound := contObj + s.model.discreteBound(lo, hi)
	if s.incumbent != nil && bound >= s.best-simEps {
		return
	}

	next := -1
	for _, id := range s.model.disc {
		if lo[id] < hi[id] {
			next = int(id)
			break
		}
	}
	if next < 0 {
		values := make([]float64, s.model.nvars)
		for _, id := range s.model.disc {
			values[id] = lo[id]
		}
		for i, id := range s.model.cont {
			values[id] = x[i+1]
		}
		s.best = bound
		s.incumbent = values
		if s.onIncumbent != nil {
			s.onIncumbent(bound)
		}
		return
	}

	cost := s.model.objCoef(milp.VarID(next))
	first, last, step := lo[next], hi[next], 1.0
	if cost < 0 {
		first, last, step = hi[next], lo[next], -1.0
	}
	for v := first; (step > 0 && v <= last) || (step < 0 && v >= last); v += step {
		clo := append([]float64(nil), lo...)
		chi := append([]float64(nil), hi...)
		clo[next], chi[next] = v, v
		s.branch(clo, chi)
		if s.stopped {
			return
		}
	}
}

func (m *simModel) objCoef(id milp.VarID) float64 {
	var c float64
	for _, t := range m.obj {
		if t.Var == id {
			c += t.Coef
		}
	}
	return c
}

// propagate tightens discrete domains against the purely discrete rows.
// It returns false when a row cannot be satisfied.
func (m *simModel) propagate(lo, hi []float64) bool {
	for round := 0; round < 64; round++ {
		changed := false
		for _, row := range m.discs {
			maxSum := 0.0
			for _, t := range row.terms {
				maxSum += math.Max(t.Coef*lo[t.Var], t.Coef*hi[t.Var])
			}
			if maxSum < row.rhs-1e-6 {
				return false
			}
			for _, t := range row.terms {
				others := maxSum - math.Max(t.Coef*lo[t.Var], t.Coef*hi[t.Var])
				need := (row.rhs - others) / t.Coef
				if t.Coef > 0 {
					if nl := math.Ceil(need - 1e-6); nl > lo[t.Var] {
						lo[t.Var] = nl
						changed = true
					}
				} else {
					if nh := math.Floor(need + 1e-6); nh < hi[t.Var] {
						hi[t.Var] = nh
						changed = true
					}
				}
				if lo[t.Var] > hi[t.Var] {
					return false
				}
			}
		}
		if !changed {
			return true
		}
	}
	return true
}

// discreteBound is the least objective contribution of the discrete
// variables over their domains
func (m *simModel) discreteBound(lo, hi []float64) float64 {
	var b float64
	for _, t := range m.obj {
		if m.vars[t.Var].Kind.Discrete() {
			b += math.Min(t.Coef*lo[t.Var], t.Coef*hi[t.Var])
		}
	}
	return b
}

// relax computes the least solution of the relaxed difference system by
// longest paths from the zero node. It returns the node values, their
// objective contribution and false when the system is infeasible.
func (m *simModel) relax(lo, hi []float64) ([]float64, float64, bool) {
	n := len(m.cont) + 1
	type edge struct {
		from, to int
		w        float64
	}
	edges := make([]edge, 0, len(m.diffs))
	for _, row := range m.diffs {
		dmax := 0.0
		for _, t := range row.disc {
			dmax += math.Max(t.Coef*lo[t.Var], t.Coef*hi[t.Var])
		}
		edges = append(edges, edge{from: row.q, to: row.p, w: row.rhs - dmax})
	}

	dist := make([]float64, n)
	for i := 1; i < n; i++ {
		dist[i] = math.Inf(-1)
	}
	for round := 0; round <= n; round++ {
		changed := false
		for _, e := range edges {
			if math.IsInf(dist[e.from], -1) {
				continue
			}
			if d := dist[e.from] + e.w; d > dist[e.to]+simEps {
				dist[e.to] = d
				changed = true
			}
		}
		if dist[0] > simEps {
			return nil, 0, false
		}
		if !changed {
			var obj float64
			for _, t := range m.obj {
				if k := m.node[t.Var]; k > 0 {
					obj += t.Coef * dist[k]
				}
			}
			return dist, obj, true
		}
	}
	return nil, 0, false
}
