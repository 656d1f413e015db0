package solver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/milp"
)

// Adapter binds a solver name to a registry. The name is only resolved
// when Solve is called, so an unknown name surfaces as an Error status.
type Adapter struct {
	registry *Registry
	name     string
	log      *slog.Logger
}

// NewAdapter returns an adapter on reg. A nil logger discards output.
func NewAdapter(reg *Registry, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Adapter{registry: reg, log: log}
}

// SetSolver selects the backend by name without validating it
func (a *Adapter) SetSolver(name string) {
	a.name = name
}

// Solver returns the selected backend name
func (a *Adapter) Solver() string {
	return a.name
}

// Solve runs p on the selected backend. Values reported by the backend are
// checked against p; a solution that violates it is turned into an Error.
func (a *Adapter) Solve(ctx context.Context, p *milp.Problem, opts Options) *milp.Solution {
	start := time.Now()
	s, err := a.registry.New(a.name)
	if err != nil {
		return failed(a.name, err, "")
	}

	a.log.Debug("solving",
		"solver", a.name,
		"variables", p.NumVars(),
		"constraints", p.NumConstraints(),
		"time_limit", opts.TimeLimit)

	sol := s.Solve(ctx, p, opts)
	if sol == nil {
		sol = failed(a.name, fmt.Errorf("%w: no result", ErrBadOutput), "")
	}
	if sol.Backend == "" {
		sol.Backend = s.Name()
	}
	if sol.Elapsed == 0 {
		sol.Elapsed = time.Since(start)
	}

	if sol.Usable() {
		p.RoundIntegers(sol.Values)
		if err := milp.Check(p, sol.Values, 1e-4); err != nil {
			a.log.Warn("solver returned an infeasible point", "solver", a.name, "error", err)
			bad := failed(sol.Backend, fmt.Errorf("%w: %v", ErrBadOutput, err), "")
			bad.Elapsed = sol.Elapsed
			return bad
		}
		sol.Objective = p.ObjectiveValue(sol.Values)
	}

	a.log.Debug("solve finished",
		"solver", a.name,
		"status", sol.Status.String(),
		"incumbent", sol.HasIncumbent,
		"objective", sol.Objective,
		"elapsed", sol.Elapsed)
	return sol
}
