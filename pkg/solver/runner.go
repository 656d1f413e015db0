package solver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/milp"
)

// killGrace is how long an external solver may overrun its own time limit
// before the process is killed
const killGrace = 10 * time.Second

const (
	modelFile    = "model.lp"
	solutionFile = "solution.txt"
)

// invocation describes how one external backend is run and read back
type invocation struct {
	name   string
	binary string

	// args returns the command line for a model and solution path
	args func(model, solution string, limit time.Duration) []string

	// parse reads the solution file (nil when the solver wrote none) and
	// the captured console output
	parse func(p *milp.Problem, solution io.Reader, output []byte, limited bool) (*milp.Solution, error)
}

// External runs a MILP solver executable on an LP file
type External struct {
	inv invocation
	log *slog.Logger
}

// Name implements Solver
func (e *External) Name() string {
	return e.inv.name
}

// Binary returns the executable the backend runs
func (e *External) Binary() string {
	return e.inv.binary
}

// WithLogger sets the logger and returns e
func (e *External) WithLogger(log *slog.Logger) *External {
	e.log = log
	return e
}

// Solve implements Solver
func (e *External) Solve(ctx context.Context, p *milp.Problem, opts Options) *milp.Solution {
	start := time.Now()
	log := e.log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if _, err := exec.LookPath(e.inv.binary); err != nil {
		return failed(e.inv.name, fmt.Errorf("%w: %s", ErrBinaryNotFound, e.inv.binary), "")
	}

	runID := uuid.NewString()
	base := opts.WorkDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "hlsbuf-"+e.inv.name+"-"+runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failed(e.inv.name, fmt.Errorf("scratch dir: %w", err), "")
	}
	if !opts.KeepFiles {
		defer os.RemoveAll(dir)
	}

	model := filepath.Join(dir, modelFile)
	solution := filepath.Join(dir, solutionFile)
	if err := writeModel(model, p); err != nil {
		return failed(e.inv.name, err, "")
	}

	runCtx := ctx
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.TimeLimit+killGrace)
		defer cancel()
	}

	args := e.inv.args(model, solution, opts.TimeLimit)
	cmd := exec.CommandContext(runCtx, e.inv.binary, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.Debug("running solver",
		"solver", e.inv.name,
		"run_id", runID,
		"binary", e.inv.binary,
		"dir", dir)

	runErr := cmd.Run()
	elapsed := time.Since(start)
	if runErr != nil {
		if opts.TimeLimit > 0 && runCtx.Err() != nil {
			return &milp.Solution{Status: milp.TimedOut, Backend: e.inv.name, Elapsed: elapsed}
		}
		if err := ctx.Err(); err != nil {
			return failed(e.inv.name, fmt.Errorf("run: %w", err), out.String())
		}
		return failed(e.inv.name, fmt.Errorf("run: %w", runErr), out.String())
	}

	var solReader io.Reader
	if f, err := os.Open(solution); err == nil {
		defer f.Close()
		solReader = f
	}
	sol, err := e.inv.parse(p, solReader, out.Bytes(), opts.TimeLimit > 0)
	if err != nil {
		return failed(e.inv.name, err, out.String())
	}
	sol.Backend = e.inv.name
	sol.Elapsed = elapsed
	return sol
}

func writeModel(path string, p *milp.Problem) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := milp.WriteLP(f, p); err != nil {
		f.Close()
		return fmt.Errorf("write model: %w", err)
	}
	return f.Close()
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%g", d.Seconds())
}
