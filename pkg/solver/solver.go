// Package solver runs milp problems on pluggable backends. External
// backends are driven as subprocesses through CPLEX LP files; the sim
// backend solves difference-constraint MILPs in process.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/milp"
)

// Options configures one solve
type Options struct {
	// TimeLimit bounds the solve; zero means no limit
	TimeLimit time.Duration
	// WorkDir is where scratch directories are created; "" uses os.TempDir
	WorkDir string
	// KeepFiles leaves the model and solution files on disk
	KeepFiles bool
}

// Solver is one MILP backend. Solve never panics and always returns a
// solution; failures are reported with Status milp.Error.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *milp.Problem, opts Options) *milp.Solution
}

var (
	// ErrUnknownSolver is reported when a solver name is not registered
	ErrUnknownSolver = errors.New("solver: unknown solver")

	// ErrUnsupportedProblem is reported by backends that cannot handle the
	// structure of a problem
	ErrUnsupportedProblem = errors.New("solver: unsupported problem structure")

	// ErrBinaryNotFound is reported when an external solver is not installed
	ErrBinaryNotFound = errors.New("solver: executable not found")

	// ErrBadOutput is reported when a solver's output cannot be understood
	ErrBadOutput = errors.New("solver: unrecognised solver output")
)

// SolverError wraps a backend failure with its name and any captured output
type SolverError struct {
	Backend string
	Err     error
	Output  string
}

func (e *SolverError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("solver %s: %v: %s", e.Backend, e.Err, e.Output)
	}
	return fmt.Sprintf("solver %s: %v", e.Backend, e.Err)
}

func (e *SolverError) Unwrap() error {
	return e.Err
}

// failed builds an Error status solution
func failed(backend string, err error, output string) *milp.Solution {
	return &milp.Solution{
		Status:  milp.Error,
		Backend: backend,
		Err:     &SolverError{Backend: backend, Err: err, Output: tail(output, 2048)},
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
