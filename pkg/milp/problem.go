// Package milp describes mixed-integer linear minimisation problems
// independently of any solver, writes them in CPLEX LP format and checks
// candidate solutions.
package milp

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
)

// VarKind is the domain of a variable
type VarKind int

const (
	Continuous VarKind = iota
	Binary
	Integer
)

func (k VarKind) String() string {
	switch k {
	case Binary:
		return "binary"
	case Integer:
		return "integer"
	}
	return "continuous"
}

// Discrete reports whether values of this kind must be integral
func (k VarKind) Discrete() bool {
	return k != Continuous
}

// VarID indexes the variables of a Problem
type VarID int

// Var is one decision variable. Hi may be +Inf and Lo may be -Inf.
type Var struct {
	ID   VarID
	Name string
	Kind VarKind
	Lo   float64
	Hi   float64
}

// Term is a coefficient applied to a variable
type Term struct {
	Var  VarID
	Coef float64
}

// T is shorthand for a Term
func T(coef float64, v VarID) Term {
	return Term{Var: v, Coef: coef}
}

// Sense is the relation of a constraint
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case GE:
		return ">="
	case EQ:
		return "="
	}
	return "<="
}

// Constraint is sum(Terms) Sense RHS
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// ErrDuplicateName is returned when a variable or constraint name repeats
var ErrDuplicateName = errors.New("milp: duplicate name")

// ErrInvalidName is returned for names the LP format cannot carry
var ErrInvalidName = errors.New("milp: invalid name")

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Problem is a minimisation MILP
type Problem struct {
	Name string

	vars     []Var
	byName   map[string]VarID
	cons     []Constraint
	conNames map[string]bool
	obj      []Term
}

// NewProblem returns an empty problem
func NewProblem(name string) *Problem {
	return &Problem{
		Name:     name,
		byName:   make(map[string]VarID),
		conNames: make(map[string]bool),
	}
}

// AddVar declares a variable. Binary variables are always bounded to [0, 1].
func (p *Problem) AddVar(name string, kind VarKind, lo, hi float64) (VarID, error) {
	if !nameRe.MatchString(name) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, dup := p.byName[name]; dup {
		return 0, fmt.Errorf("%w: variable %q", ErrDuplicateName, name)
	}
	if kind == Binary {
		lo, hi = 0, 1
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return 0, fmt.Errorf("milp: variable %q has empty domain [%v, %v]", name, lo, hi)
	}
	id := VarID(len(p.vars))
	p.vars = append(p.vars, Var{ID: id, Name: name, Kind: kind, Lo: lo, Hi: hi})
	p.byName[name] = id
	return id, nil
}

// AddConstraint appends a constraint. Terms on the same variable are
// combined and zero coefficients dropped.
func (p *Problem) AddConstraint(name string, terms []Term, sense Sense, rhs float64) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if p.conNames[name] {
		return fmt.Errorf("%w: constraint %q", ErrDuplicateName, name)
	}
	merged, err := p.normalize(terms)
	if err != nil {
		return fmt.Errorf("milp: constraint %q: %w", name, err)
	}
	if len(merged) == 0 {
		return fmt.Errorf("milp: constraint %q has no terms", name)
	}
	p.cons = append(p.cons, Constraint{Name: name, Terms: merged, Sense: sense, RHS: rhs})
	p.conNames[name] = true
	return nil
}

// SetObjective replaces the minimisation objective
func (p *Problem) SetObjective(terms []Term) error {
	merged, err := p.normalize(terms)
	if err != nil {
		return fmt.Errorf("milp: objective: %w", err)
	}
	p.obj = merged
	return nil
}

func (p *Problem) normalize(terms []Term) ([]Term, error) {
	sum := make(map[VarID]float64, len(terms))
	for _, t := range terms {
		if t.Var < 0 || int(t.Var) >= len(p.vars) {
			return nil, fmt.Errorf("unknown variable %d", t.Var)
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return nil, fmt.Errorf("coefficient of %s is not finite", p.vars[t.Var].Name)
		}
		sum[t.Var] += t.Coef
	}
	out := make([]Term, 0, len(sum))
	for v, c := range sum {
		if c != 0 {
			out = append(out, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Var < out[j].Var })
	return out, nil
}

// Var returns variable id
func (p *Problem) Var(id VarID) Var {
	return p.vars[id]
}

// Vars returns all variables in id order
func (p *Problem) Vars() []Var {
	return append([]Var(nil), p.vars...)
}

// Lookup finds a variable by name
func (p *Problem) Lookup(name string) (VarID, bool) {
	id, ok := p.byName[name]
	return id, ok
}

// Constraints returns all constraints in insertion order
func (p *Problem) Constraints() []Constraint {
	return append([]Constraint(nil), p.cons...)
}

// Objective returns the objective terms
func (p *Problem) Objective() []Term {
	return append([]Term(nil), p.obj...)
}

// NumVars returns the number of variables
func (p *Problem) NumVars() int {
	return len(p.vars)
}

// NumConstraints returns the number of constraints
func (p *Problem) NumConstraints() int {
	return len(p.cons)
}

// Eval computes sum(terms) at values
func Eval(terms []Term, values []float64) float64 {
	var s float64
	for _, t := range terms {
		s += t.Coef * values[t.Var]
	}
	return s
}

// ObjectiveValue evaluates the objective at values
func (p *Problem) ObjectiveValue(values []float64) float64 {
	return Eval(p.obj, values)
}

// RoundIntegers snaps discrete variables to the nearest integer in place
func (p *Problem) RoundIntegers(values []float64) {
	for _, v := range p.vars {
		if v.Kind.Discrete() && int(v.ID) < len(values) {
			values[v.ID] = math.Round(values[v.ID])
		}
	}
}
