// Package buffers places elastic buffers in a dataflow netlist. It builds a
// MILP that sizes and positions buffers for a target clock period, solves it
// through a solver adapter and splices the chosen buffers into the netlist.
package buffers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/milp"
	"github.com/OpenTraceLab/OpenTraceHLS/pkg/netlist"
	"github.com/OpenTraceLab/OpenTraceHLS/pkg/solver"
)

const tracerName = "github.com/OpenTraceLab/OpenTraceHLS/pkg/buffers"

// DefaultSolver is the backend used until SetSolver is called
const DefaultSolver = "cbc"

var (
	// ErrModelPrecondition is returned when the netlist violates a
	// structural assumption of the formulation
	ErrModelPrecondition = errors.New("buffers: model precondition violated")

	// ErrInvalidPeriod is returned for a non-positive clock period or a
	// negative buffer delay
	ErrInvalidPeriod = errors.New("buffers: invalid period or buffer delay")

	// ErrTooManyCycles is returned when the netlist has more elementary
	// cycles than Config.MaxCycles
	ErrTooManyCycles = netlist.ErrTooManyCycles

	// ErrAlreadyInstantiated is returned by a second Instantiate
	ErrAlreadyInstantiated = errors.New("buffers: model already instantiated")

	// ErrNotSolved is returned when instantiation is attempted without a
	// solved model
	ErrNotSolved = errors.New("buffers: model is not solved")
)

// Formulation selects how the MILP is built
type Formulation int

const (
	// Direct has one decision per channel
	Direct Formulation = iota
	// BasicBlock shares one decision among the channels between two blocks
	BasicBlock
	// Sequential is BasicBlock plus the block ordering constraint
	Sequential
)

func (f Formulation) String() string {
	switch f {
	case Direct:
		return "direct"
	case BasicBlock:
		return "bb"
	case Sequential:
		return "bb_sc"
	}
	return fmt.Sprintf("Formulation(%d)", int(f))
}

// BBOptions configures the basic-block formulations
type BBOptions struct {
	// StartBlock is the block the sequential ordering starts from; -1
	// picks the block of the Start component, else the lowest block id
	StartBlock int
	// Timeout bounds the solve; zero means no limit
	Timeout time.Duration
}

// Engine places buffers in one netlist. It is not safe for concurrent use.
type Engine struct {
	nl       *netlist.Netlist
	cfg      *Config
	log      *slog.Logger
	registry *solver.Registry
	adapter  *solver.Adapter
	metrics  *Metrics
	tracer   trace.Tracer
}

// Option configures an Engine
type Option func(*Engine)

// WithConfig replaces DefaultConfig
func WithConfig(cfg *Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger; the default discards output
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithRegistry replaces the default solver registry
func WithRegistry(reg *solver.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithMetrics records solve statistics on m
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer; the default uses the global provider
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New returns an engine for nl
func New(nl *netlist.Netlist, opts ...Option) *Engine {
	e := &Engine{nl: nl}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg == nil {
		e.cfg = DefaultConfig()
	}
	if e.log == nil {
		e.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.registry == nil {
		e.registry = solver.DefaultRegistry(e.cfg.Binaries())
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.adapter = solver.NewAdapter(e.registry, e.log)
	e.adapter.SetSolver(DefaultSolver)
	return e
}

// SetSolver selects the backend by name. Unknown names are reported by the
// next solve.
func (e *Engine) SetSolver(name string) {
	e.adapter.SetSolver(name)
}

// Solver returns the selected backend name
func (e *Engine) Solver() string {
	return e.adapter.Solver()
}

// Netlist returns the netlist the engine works on
func (e *Engine) Netlist() *netlist.Netlist {
	return e.nl
}

// AddElasticBuffers builds and solves the direct formulation at clock
// period and buffer delay. It blocks until the solver finishes. The netlist
// is not modified; call Instantiate on a solved model.
func (e *Engine) AddElasticBuffers(ctx context.Context, period, delay float64) (*Model, error) {
	return e.run(ctx, Direct, period, delay, BBOptions{StartBlock: -1})
}

// AddElasticBuffersBB builds and solves the basic-block formulation. When
// opts.Timeout elapses the best incumbent found so far is kept and the model
// reports TimedOut.
func (e *Engine) AddElasticBuffersBB(ctx context.Context, period, delay float64, opts BBOptions) (*Model, error) {
	return e.run(ctx, BasicBlock, period, delay, opts)
}

// AddElasticBuffersBBSC is AddElasticBuffersBB with the sequential
// constraint bounding registers along forward block paths from the start
// block.
func (e *Engine) AddElasticBuffersBBSC(ctx context.Context, period, delay float64, opts BBOptions) (*Model, error) {
	return e.run(ctx, Sequential, period, delay, opts)
}

func (e *Engine) run(ctx context.Context, f Formulation, period, delay float64, opts BBOptions) (*Model, error) {
	ctx, span := e.tracer.Start(ctx, "buffers."+f.String(),
		trace.WithAttributes(
			attribute.Float64("period", period),
			attribute.Float64("buffer_delay", delay),
			attribute.String("solver", e.Solver()),
		))
	defer span.End()

	m := &Model{
		eng:         e,
		formulation: f,
		period:      period,
		delay:       delay,
		state:       Unsolved,
	}
	if err := e.build(ctx, m, opts); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e.solve(ctx, m, opts)
	span.SetAttributes(attribute.String("status", m.state.String()))
	return m, nil
}

func (e *Engine) build(ctx context.Context, m *Model, opts BBOptions) error {
	_, span := e.tracer.Start(ctx, "buffers.build")
	defer span.End()

	if m.period <= 0 || math.IsNaN(m.period) || math.IsInf(m.period, 0) {
		return fmt.Errorf("%w: period %g", ErrInvalidPeriod, m.period)
	}
	if m.delay < 0 || math.IsNaN(m.delay) || math.IsInf(m.delay, 0) {
		return fmt.Errorf("%w: buffer delay %g", ErrInvalidPeriod, m.delay)
	}
	if e.nl.HasError() {
		return fmt.Errorf("%w: %v", ErrModelPrecondition, e.nl.Err())
	}
	if err := e.nl.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrModelPrecondition, err)
	}

	m.state = Building
	b := newBuilder(e.nl, e.cfg, m.period, m.delay)
	var err error
	switch m.formulation {
	case Direct:
		err = b.direct()
	case BasicBlock:
		err = b.basicBlock(opts, false)
	case Sequential:
		err = b.basicBlock(opts, true)
	}
	if err != nil {
		m.state = Unsolved
		return err
	}

	m.problem = b.p
	m.units = b.units
	m.cycles = b.cycles
	m.start = b.start
	m.components, m.channels = e.nl.NumComponents(), e.nl.NumChannels()

	e.metrics.observeBuild(m.formulation, b.p.NumVars(), b.p.NumConstraints(), b.cycles)
	span.SetAttributes(
		attribute.Int("variables", b.p.NumVars()),
		attribute.Int("constraints", b.p.NumConstraints()),
		attribute.Int("cycles", b.cycles))
	e.log.Debug("model built",
		"formulation", m.formulation.String(),
		"variables", b.p.NumVars(),
		"constraints", b.p.NumConstraints(),
		"cycles", b.cycles,
		"decisions", len(b.units))
	return nil
}

func (e *Engine) solve(ctx context.Context, m *Model, opts BBOptions) {
	ctx, span := e.tracer.Start(ctx, "buffers.solve", trace.WithAttributes(attribute.String("solver", e.Solver())))
	defer span.End()

	so := solver.Options{
		WorkDir:   e.cfg.SolverWorkDir,
		KeepFiles: e.cfg.KeepSolverFiles,
	}
	if m.formulation != Direct {
		so.TimeLimit = opts.Timeout
	}

	sol := e.adapter.Solve(ctx, m.problem, so)
	m.solution = sol
	switch sol.Status {
	case milp.Solved:
		m.state = Solved
	case milp.Infeasible:
		m.state = Infeasible
	case milp.TimedOut:
		m.state = TimedOut
	default:
		m.state = Failed
		span.RecordError(sol.Err)
		span.SetStatus(codes.Error, "solver failed")
	}

	e.metrics.observeSolve(m.formulation, sol.Status.String(), sol.Elapsed)
	span.SetAttributes(
		attribute.String("status", sol.Status.String()),
		attribute.Bool("incumbent", sol.HasIncumbent))

	attrs := []any{
		"formulation", m.formulation.String(),
		"solver", e.Solver(),
		"status", sol.Status.String(),
		"elapsed", sol.Elapsed,
	}
	if sol.Usable() {
		attrs = append(attrs, "objective", sol.Objective, "buffers", len(m.Plan()))
	}
	if sol.Err != nil {
		attrs = append(attrs, "error", sol.Err)
		e.log.Warn("buffer placement failed", attrs...)
		return
	}
	e.log.Info("buffer placement solved", attrs...)
}
