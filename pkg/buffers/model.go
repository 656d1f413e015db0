package buffers

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/milp"
	"github.com/OpenTraceLab/OpenTraceHLS/pkg/netlist"
)

// State is the lifecycle state of a Model
type State int

const (
	Unsolved State = iota
	Building
	Solved
	Infeasible
	TimedOut
	Failed // the solver adapter reported an error
	Instantiated
)

func (s State) String() string {
	switch s {
	case Unsolved:
		return "unsolved"
	case Building:
		return "building"
	case Solved:
		return "solved"
	case Infeasible:
		return "infeasible"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	case Instantiated:
		return "instantiated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Decision is the buffer chosen for one channel
type Decision struct {
	Channel netlist.ChannelID
	Spec    netlist.BufferSpec
}

// unit is one buffer decision of the MILP, shared by its channels
type unit struct {
	name     string
	channels []netlist.ChannelID
	b, r, n  milp.VarID
}

// Model is one built and solved buffer placement problem. It is used at
// most once: a retry with other parameters builds a new model.
type Model struct {
	eng         *Engine
	formulation Formulation
	period      float64
	delay       float64
	state       State

	problem  *milp.Problem
	units    []*unit
	cycles   int
	start    int
	solution *milp.Solution

	// netlist size at build time
	components, channels int

	inserted []netlist.ComponentID
}

// State returns the lifecycle state
func (m *Model) State() State {
	return m.state
}

// Formulation returns the formulation the model was built with
func (m *Model) Formulation() Formulation {
	return m.formulation
}

// Period returns the target clock period
func (m *Model) Period() float64 {
	return m.period
}

// Problem returns the MILP
func (m *Model) Problem() *milp.Problem {
	return m.problem
}

// Solution returns the solver result
func (m *Model) Solution() *milp.Solution {
	return m.solution
}

// Cycles returns the number of elementary cycles the model constrains
func (m *Model) Cycles() int {
	return m.cycles
}

// StartBlock returns the block the sequential constraint starts from, or
// -1 for the other formulations
func (m *Model) StartBlock() int {
	return m.start
}

// Objective returns the buffer cost of the solution or incumbent
func (m *Model) Objective() float64 {
	if !m.solution.Usable() {
		return math.Inf(1)
	}
	return m.solution.Objective
}

// HasIncumbent reports whether a timed out solve found a feasible solution
func (m *Model) HasIncumbent() bool {
	return m.state == TimedOut && m.solution.Usable()
}

// Err returns the solver error of a Failed model
func (m *Model) Err() error {
	if m.solution == nil {
		return nil
	}
	return m.solution.Err
}

// Inserted returns the buffer components added by Instantiate
func (m *Model) Inserted() []netlist.ComponentID {
	return append([]netlist.ComponentID(nil), m.inserted...)
}

// Plan returns the buffer decisions of the solution or incumbent in channel
// order. It is empty when no feasible point is known.
func (m *Model) Plan() []Decision {
	if !m.solution.Usable() {
		return nil
	}
	values := m.solution.Values
	var plan []Decision
	for _, u := range m.units {
		if values[u.b] < 0.5 {
			continue
		}
		spec := netlist.BufferSpec{
			Slots:       int(math.Round(values[u.n])),
			Transparent: values[u.r] < 0.5,
		}
		if spec.Slots < 1 {
			spec.Slots = 1
		}
		for _, ch := range u.channels {
			plan = append(plan, Decision{Channel: ch, Spec: spec})
		}
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].Channel < plan[j].Channel })
	return plan
}

// AcceptIncumbent turns a timed out model with an incumbent into a solved
// one so that it can be instantiated.
func (m *Model) AcceptIncumbent() error {
	switch {
	case m.state == Solved:
		return nil
	case m.state != TimedOut:
		return fmt.Errorf("%w: state %s", ErrNotSolved, m.state)
	case !m.solution.Usable():
		return fmt.Errorf("%w: timed out without a feasible solution", ErrNotSolved)
	}
	m.state = Solved
	m.eng.log.Info("accepted incumbent",
		"formulation", m.formulation.String(),
		"objective", m.solution.Objective)
	return nil
}

// Annotate records the plan on the netlist channels without splicing
// buffers. Previous annotations are cleared.
func (m *Model) Annotate() error {
	if m.state != Solved {
		return fmt.Errorf("%w: state %s", ErrNotSolved, m.state)
	}
	nl := m.eng.nl
	nl.ClearAnnotations()
	for _, d := range m.Plan() {
		if err := nl.Annotate(d.Channel, d.Spec); err != nil {
			return err
		}
	}
	return nil
}

// Instantiate splices one Buffer component per decision into the netlist
// and returns the new components. It runs at most once per model and only
// from the Solved state.
func (m *Model) Instantiate() ([]netlist.ComponentID, error) {
	switch m.state {
	case Solved:
	case Instantiated:
		return nil, ErrAlreadyInstantiated
	default:
		return nil, fmt.Errorf("%w: state %s", ErrNotSolved, m.state)
	}

	e := m.eng
	_, span := e.tracer.Start(context.Background(), "buffers.instantiate")
	defer span.End()

	nl := e.nl
	if nl.NumComponents() != m.components || nl.NumChannels() != m.channels {
		return nil, fmt.Errorf("%w: netlist changed since the model was built", ErrModelPrecondition)
	}
	if err := milp.Check(m.problem, m.solution.Values, 1e-4); err != nil {
		return nil, fmt.Errorf("buffers: solution does not satisfy the model: %w", err)
	}

	plan := m.Plan()
	for _, d := range plan {
		if nl.Channel(d.Channel) == nil {
			return nil, fmt.Errorf("%w: %d", netlist.ErrUnknownChannel, d.Channel)
		}
	}

	inserted := make([]netlist.ComponentID, 0, len(plan))
	for _, d := range plan {
		id, _, err := nl.InsertBuffer(d.Channel, d.Spec, m.delay)
		if err != nil {
			return inserted, fmt.Errorf("buffers: channel %d: %w", d.Channel, err)
		}
		inserted = append(inserted, id)
	}
	m.inserted = inserted
	m.state = Instantiated

	e.metrics.observeInserted(len(inserted))
	span.SetAttributes(attribute.Int("buffers", len(inserted)))
	e.log.Info("buffers instantiated",
		"formulation", m.formulation.String(),
		"buffers", len(inserted),
		"components", nl.NumComponents())
	return inserted, nil
}
