package milp

import (
	"fmt"
	"math"
	"time"
)

// Status is the outcome of a solve
type Status int

const (
	// Solved means an optimal solution was found
	Solved Status = iota
	// Infeasible means the problem provably has no solution
	Infeasible
	// TimedOut means the time budget elapsed; an incumbent may be present
	TimedOut
	// Error means the solver could not be run or its output not understood
	Error
)

func (s Status) String() string {
	switch s {
	case Solved:
		return "solved"
	case Infeasible:
		return "infeasible"
	case TimedOut:
		return "timed_out"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Solution is a solver result. Values is indexed by VarID and only
// meaningful when Status is Solved or HasIncumbent is set.
type Solution struct {
	Status       Status
	Values       []float64
	Objective    float64
	HasIncumbent bool
	Err          error

	Backend string
	Elapsed time.Duration
}

// Value returns the value of variable id, or 0 when no values are present
func (s *Solution) Value(id VarID) float64 {
	if s == nil || int(id) >= len(s.Values) || id < 0 {
		return 0
	}
	return s.Values[id]
}

// Usable reports whether the solution carries variable values
func (s *Solution) Usable() bool {
	return s != nil && (s.Status == Solved || s.HasIncumbent) && s.Values != nil
}

// DefaultTolerance is the feasibility tolerance used by solvers and checks
const DefaultTolerance = 1e-6

// Check verifies that values satisfy every bound, integrality requirement
// and constraint of p within tol.
func Check(p *Problem, values []float64, tol float64) error {
	if len(values) != len(p.vars) {
		return fmt.Errorf("milp: %d values for %d variables", len(values), len(p.vars))
	}
	for _, v := range p.vars {
		x := values[v.ID]
		if math.IsNaN(x) {
			return fmt.Errorf("milp: %s is NaN", v.Name)
		}
		if x < v.Lo-tol || x > v.Hi+tol {
			return fmt.Errorf("milp: %s = %v outside [%v, %v]", v.Name, x, v.Lo, v.Hi)
		}
		if v.Kind.Discrete() && math.Abs(x-math.Round(x)) > tol {
			return fmt.Errorf("milp: %s = %v is not integral", v.Name, x)
		}
	}
	for _, c := range p.cons {
		lhs := Eval(c.Terms, values)
		var ok bool
		switch c.Sense {
		case LE:
			ok = lhs <= c.RHS+tol
		case GE:
			ok = lhs >= c.RHS-tol
		case EQ:
			ok = math.Abs(lhs-c.RHS) <= tol
		}
		if !ok {
			return fmt.Errorf("milp: constraint %s violated: %v %s %v", c.Name, lhs, c.Sense, c.RHS)
		}
	}
	return nil
}
